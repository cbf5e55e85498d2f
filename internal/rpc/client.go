package rpc

import (
	"context"

	"google.golang.org/grpc"

	"barber-booking-api/internal/model"
)

// Client talks to a booking hub over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) SendBookingUpdate(ctx context.Context, u model.BookingUpdate, opts ...grpc.CallOption) (*SendAck, error) {
	out := new(SendAck)
	opts = append(opts, grpc.ForceCodec(Codec{}))
	if err := c.cc.Invoke(ctx, SendMethod, &BookingUpdate{u}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscription yields booking updates until its context ends or Recv fails.
type Subscription struct {
	stream grpc.ClientStream
}

func (c *Client) ReceiveBookingUpdates(ctx context.Context, name string, opts ...grpc.CallOption) (*Subscription, error) {
	opts = append(opts, grpc.ForceCodec(Codec{}))
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ReceiveStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&Subscribe{ClientName: name}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: stream}, nil
}

func (s *Subscription) Recv() (model.BookingUpdate, error) {
	m := new(BookingUpdate)
	if err := s.stream.RecvMsg(m); err != nil {
		return model.BookingUpdate{}, err
	}
	return m.BookingUpdate, nil
}
