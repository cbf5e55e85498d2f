package rpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"barber-booking-api/internal/auth"
	"barber-booking-api/internal/middleware"
	"barber-booking-api/internal/model"
	"barber-booking-api/internal/relay"
	"barber-booking-api/internal/rpc"
)

const secret = "rpc-secret"

func setup(t *testing.T) (*rpc.Client, relay.Registry) {
	t.Helper()
	return setupWithLogger(t, zap.NewNop())
}

func setupWithLogger(t *testing.T, log *zap.Logger) (*rpc.Client, relay.Registry) {
	t.Helper()
	reg := relay.NewRegistry()
	r := relay.New(reg, zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(middleware.Auth(secret)),
		grpc.ChainStreamInterceptor(middleware.StreamAuth(secret)),
	)
	rpc.Register(srv, rpc.NewServer(r, log))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return rpc.NewClient(conn), reg
}

func subscribe(t *testing.T, c *rpc.Client, name string) *rpc.Subscription {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sub, err := c.ReceiveBookingUpdates(ctx, name)
	require.NoError(t, err)
	return sub
}

func recv(t *testing.T, sub *rpc.Subscription) model.BookingUpdate {
	t.Helper()
	type res struct {
		u   model.BookingUpdate
		err error
	}
	ch := make(chan res, 1)
	go func() {
		u, err := sub.Recv()
		ch <- res{u, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.u
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no booking update received")
		return model.BookingUpdate{}
	}
}

func TestSendReachesSubscribers(t *testing.T) {
	c, reg := setup(t)
	b := subscribe(t, c, "B")
	d := subscribe(t, c, "C")
	require.Eventually(t, func() bool { return reg.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	ack, err := c.SendBookingUpdate(context.Background(), model.BookingUpdate{Date: "2024-05-01", UserID: "u123"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, ack.Listeners)

	want := model.BookingUpdate{Date: "2024-05-01", UserID: "u123"}
	assert.Equal(t, want, recv(t, b))
	assert.Equal(t, want, recv(t, d))
}

func TestSendDefaultsOverGRPC(t *testing.T) {
	c, reg := setup(t)
	sub := subscribe(t, c, "B")
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := c.SendBookingUpdate(context.Background(), model.BookingUpdate{Date: "2024-05-03"})
	require.NoError(t, err)

	got := recv(t, sub)
	assert.Equal(t, model.DefaultUserID, got.UserID)
	assert.False(t, got.Admin)
	assert.Nil(t, got.Notification)
}

func TestNotificationOverGRPC(t *testing.T) {
	c, reg := setup(t)
	sub := subscribe(t, c, "admin-hub")
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	n := &model.UserActivityNotification{
		ID: "01J0", MessageType: model.ActivityCancelled, Message: "cancelled 15:00",
		UserType: model.UserTypeAdmin, Timestamp: time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC),
	}
	_, err := c.SendBookingUpdate(context.Background(), model.BookingUpdate{Date: "2024-05-01", UserID: "a1", Admin: true, Notification: n})
	require.NoError(t, err)

	got := recv(t, sub)
	assert.True(t, got.Admin)
	require.NotNil(t, got.Notification)
	assert.Equal(t, *n, *got.Notification)
}

func TestNoSubscribersStillSucceeds(t *testing.T) {
	c, _ := setup(t)
	ack, err := c.SendBookingUpdate(context.Background(), model.BookingUpdate{Date: "2024-05-01"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, ack.Listeners)
}

func TestBadTokenRejected(t *testing.T) {
	c, _ := setup(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer junk")
	_, err := c.SendBookingUpdate(ctx, model.BookingUpdate{Date: "2024-05-01"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	tok, _ := auth.MakeToken(auth.Identity{UserID: "u1"}, secret)
	ctx = metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
	_, err = c.SendBookingUpdate(ctx, model.BookingUpdate{Date: "2024-05-01"})
	assert.NoError(t, err)
}

func TestStreamClosedUnregisters(t *testing.T) {
	c, reg := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.ReceiveBookingUpdates(ctx, "short-lived")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return reg.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSendLogsCaller(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c, _ := setupWithLogger(t, zap.New(core))

	tok, _ := auth.MakeToken(auth.Identity{UserID: "u42"}, secret)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
	_, err := c.SendBookingUpdate(ctx, model.BookingUpdate{Date: "2024-05-01"})
	require.NoError(t, err)
	_, err = c.SendBookingUpdate(context.Background(), model.BookingUpdate{Date: "2024-05-02"})
	require.NoError(t, err)

	sent := logs.FilterMessage("booking update sent").All()
	require.Len(t, sent, 2)
	assert.Equal(t, "u42", sent[0].ContextMap()["user_id"])
	assert.Equal(t, "anonymous", sent[1].ContextMap()["user_id"])
}
