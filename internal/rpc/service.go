// Package rpc exposes the booking relay over gRPC.
package rpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"barber-booking-api/internal/metrics"
	"barber-booking-api/internal/middleware"
	"barber-booking-api/internal/model"
	"barber-booking-api/internal/relay"
)

const (
	ServiceName         = "booking.v1.BookingHub"
	SendMethod          = "/" + ServiceName + "/SendBookingUpdate"
	ReceiveStreamMethod = "/" + ServiceName + "/ReceiveBookingUpdates"
	streamQueueSize     = 64
)

// BookingHubServer is the handler type behind ServiceDesc.
type BookingHubServer interface {
	SendBookingUpdate(context.Context, *BookingUpdate) (*SendAck, error)
	ReceiveBookingUpdates(*Subscribe, grpc.ServerStream) error
}

type Server struct {
	relay *relay.Relay
	log   *zap.Logger
}

func NewServer(r *relay.Relay, log *zap.Logger) *Server {
	return &Server{relay: r, log: log}
}

// Register attaches the booking hub to srv.
func Register(srv *grpc.Server, s *Server) {
	srv.RegisterService(&ServiceDesc, s)
}

func (s *Server) SendBookingUpdate(ctx context.Context, req *BookingUpdate) (*SendAck, error) {
	listeners := s.relay.Registry().Len()
	if err := s.relay.SendBookingUpdate(ctx, req.BookingUpdate); err != nil {
		s.log.Error("send booking update", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "broadcast failed")
	}
	s.log.Info("booking update sent",
		zap.String("date", req.Date),
		zap.String("user_id", callerID(ctx)),
		zap.Int("listeners", listeners))
	return &SendAck{Listeners: uint32(listeners)}, nil
}

// ReceiveBookingUpdates keeps the stream registered until the client leaves.
func (s *Server) ReceiveBookingUpdates(req *Subscribe, stream grpc.ServerStream) error {
	ctx := stream.Context()
	c := &streamConn{
		id:    uuid.New().String(),
		queue: make(chan model.BookingUpdate, streamQueueSize),
		done:  ctx.Done(),
	}
	reg := s.relay.Registry()
	reg.Add(c)
	metrics.HubConnections.WithLabelValues("grpc").Inc()
	defer func() {
		reg.Remove(c.id)
		metrics.HubConnections.WithLabelValues("grpc").Dec()
	}()

	remote := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		remote = p.Addr.String()
	}
	s.log.Info("grpc subscriber connected",
		zap.String("client_id", c.id),
		zap.String("client_name", req.ClientName),
		zap.String("user_id", callerID(ctx)),
		zap.String("peer", remote))

	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-c.queue:
			if err := stream.SendMsg(&BookingUpdate{u}); err != nil {
				s.log.Debug("grpc stream send", zap.String("client_id", c.id), zap.Error(err))
				return err
			}
		}
	}
}

// callerID names the authenticated user, or "anonymous".
func callerID(ctx context.Context) string {
	if id, ok := middleware.IdentityFrom(ctx); ok {
		return id.UserID
	}
	return "anonymous"
}

var errStreamGone = errors.New("stream closed")

type streamConn struct {
	id    string
	queue chan model.BookingUpdate
	done  <-chan struct{}
}

func (c *streamConn) ID() string { return c.id }

func (c *streamConn) Deliver(u model.BookingUpdate) error {
	select {
	case <-c.done:
		return errStreamGone
	case c.queue <- u:
		return nil
	default:
		return errors.New("stream queue full")
	}
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BookingUpdate)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingHubServer).SendBookingUpdate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SendMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingHubServer).SendBookingUpdate(ctx, req.(*BookingUpdate))
	}
	return interceptor(ctx, in, info, handler)
}

func receiveHandler(srv any, stream grpc.ServerStream) error {
	in := new(Subscribe)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BookingHubServer).ReceiveBookingUpdates(in, stream)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingHubServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendBookingUpdate", Handler: sendHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "ReceiveBookingUpdates", Handler: receiveHandler, ServerStreams: true},
	},
	Metadata: "booking/v1/hub.proto",
}
