package hub_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barber-booking-api/internal/hub"
	"barber-booking-api/internal/relay"
)

type frame struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId"`
	Target       string            `json:"target"`
	Arguments    []json.RawMessage `json:"arguments"`
	Error        string            `json:"error"`
}

func setup(t *testing.T, opts hub.Options) (*httptest.Server, relay.Registry) {
	t.Helper()
	reg := relay.NewRegistry()
	r := relay.New(reg, zap.NewNop())
	srv := httptest.NewServer(hub.NewHandler(r, zap.NewNop(), opts))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(msg, &f))
	return f
}

func waitClients(t *testing.T, reg relay.Registry, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return reg.Len() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a, b, c := dial(t, srv), dial(t, srv), dial(t, srv)
	waitClients(t, reg, 3)

	err := a.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":1,"target":"SendBookingUpdate","arguments":["2024-05-01","u123",false,null]}`))
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{a, b, c} {
		f := read(t, conn)
		assert.Equal(t, 1, f.Type)
		assert.Equal(t, "ReceiveBookingUpdate", f.Target)
		require.Len(t, f.Arguments, 4)
		assert.JSONEq(t, `"2024-05-01"`, string(f.Arguments[0]))
		assert.JSONEq(t, `"u123"`, string(f.Arguments[1]))
		assert.JSONEq(t, `false`, string(f.Arguments[2]))
		assert.JSONEq(t, `null`, string(f.Arguments[3]))
	}
}

func TestDateOnlyInvocationUsesDefaults(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, reg, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":1,"invocationId":"1","target":"SendBookingUpdate","arguments":["2024-05-02"]}`)))

	f := read(t, b)
	require.Len(t, f.Arguments, 4)
	assert.JSONEq(t, `"DEFAULT_EMPTY"`, string(f.Arguments[1]))
	assert.JSONEq(t, `false`, string(f.Arguments[2]))
	assert.JSONEq(t, `null`, string(f.Arguments[3]))

	// caller gets the event and the completion, in that order
	ev := read(t, a)
	assert.Equal(t, "ReceiveBookingUpdate", ev.Target)
	done := read(t, a)
	assert.Equal(t, 3, done.Type)
	assert.Equal(t, "1", done.InvocationID)
	assert.Empty(t, done.Error)
}

func TestNotificationArgument(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":1,"target":"SendBookingUpdate","arguments":[
		"2024-05-01","u1",true,
		{"id":"n1","messageType":"booking","message":"booked","userType":"admin","timestamp":"2024-05-01T09:00:00Z"}]}`)))

	f := read(t, a)
	require.Len(t, f.Arguments, 4)
	assert.JSONEq(t, `true`, string(f.Arguments[2]))
	assert.JSONEq(t,
		`{"id":"n1","messageType":"booking","message":"booked","userType":"admin","timestamp":"2024-05-01T09:00:00Z"}`,
		string(f.Arguments[3]))
}

func TestUnknownTargetCompletesWithError(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":1,"invocationId":"9","target":"DropTables","arguments":["x"]}`)))

	f := read(t, a)
	assert.Equal(t, 3, f.Type)
	assert.Equal(t, "9", f.InvocationID)
	assert.Contains(t, f.Error, "unknown hub method")
}

func TestBadArgumentsCompleteWithError(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":1,"invocationId":"2","target":"SendBookingUpdate","arguments":[]}`)))

	f := read(t, a)
	assert.Equal(t, 3, f.Type)
	assert.Contains(t, f.Error, "invalid arguments")
}

func TestPing(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":6}`)))
	assert.Equal(t, 6, read(t, a).Type)
}

func TestRateLimitedInvocation(t *testing.T) {
	srv, reg := setup(t, hub.Options{InvokeRate: 0.001, InvokeBurst: 1})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	send := `{"type":1,"invocationId":"%s","target":"SendBookingUpdate","arguments":["2024-05-01"]}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(strings.Replace(send, "%s", "1", 1))))
	assert.Equal(t, "ReceiveBookingUpdate", read(t, a).Target)
	assert.Empty(t, read(t, a).Error)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(strings.Replace(send, "%s", "2", 1))))
	f := read(t, a)
	assert.Equal(t, 3, f.Type)
	assert.Equal(t, "too many requests", f.Error)
}

func TestDisconnectUnregisters(t *testing.T) {
	srv, reg := setup(t, hub.Options{})
	a := dial(t, srv)
	waitClients(t, reg, 1)

	a.Close()
	waitClients(t, reg, 0)
}

func TestOriginCheck(t *testing.T) {
	srv, _ := setup(t, hub.Options{AllowedOrigins: []string{"https://shop.example"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	hdr := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
