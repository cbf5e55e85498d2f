package rpc

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"barber-booking-api/internal/model"
)

// Wire layout (proto3):
//
//	message BookingUpdate {
//	  string date = 1;
//	  string user_id = 2;
//	  bool admin = 3;
//	  UserActivityNotification notification = 4;
//	}
//	message UserActivityNotification {
//	  string id = 1;
//	  string message_type = 2;
//	  string message = 3;
//	  string user_type = 4;
//	  google.protobuf.Timestamp timestamp = 5;
//	}
//	message SendAck { uint32 listeners = 1; }
//	message Subscribe { string client_name = 1; }

var errParse = errors.New("malformed message")

// Message is anything the booking hub codec can put on the wire.
type Message interface {
	appendWire(b []byte) ([]byte, error)
	parseWire(b []byte) error
}

type BookingUpdate struct{ model.BookingUpdate }

type SendAck struct{ Listeners uint32 }

type Subscribe struct{ ClientName string }

func (m *BookingUpdate) appendWire(b []byte) ([]byte, error) {
	if m.Date != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Date)
	}
	if m.UserID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, m.UserID)
	}
	if m.Admin {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if n := m.Notification; n != nil {
		var nb []byte
		nb = appendString(nb, 1, n.ID)
		nb = appendString(nb, 2, n.MessageType)
		nb = appendString(nb, 3, n.Message)
		nb = appendString(nb, 4, n.UserType)
		if !n.Timestamp.IsZero() {
			ts, err := proto.Marshal(timestamppb.New(n.Timestamp))
			if err != nil {
				return nil, err
			}
			nb = protowire.AppendTag(nb, 5, protowire.BytesType)
			nb = protowire.AppendBytes(nb, ts)
		}
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, nb)
	}
	return b, nil
}

func (m *BookingUpdate) parseWire(b []byte) error {
	*m = BookingUpdate{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			m.Date = string(v)
		case num == 2 && typ == protowire.BytesType:
			m.UserID = string(v)
		case num == 3 && typ == protowire.VarintType:
			m.Admin = protowire.DecodeBool(x)
		case num == 4 && typ == protowire.BytesType:
			n, err := parseNotification(v)
			if err != nil {
				return err
			}
			m.Notification = n
		}
		return nil
	})
}

func parseNotification(b []byte) (*model.UserActivityNotification, error) {
	n := &model.UserActivityNotification{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			n.ID = string(v)
		case 2:
			n.MessageType = string(v)
		case 3:
			n.Message = string(v)
		case 4:
			n.UserType = string(v)
		case 5:
			ts := &timestamppb.Timestamp{}
			if err := proto.Unmarshal(v, ts); err != nil {
				return fmt.Errorf("%w: timestamp: %v", errParse, err)
			}
			n.Timestamp = ts.AsTime()
		}
		return nil
	})
	return n, err
}

func (m *SendAck) appendWire(b []byte) ([]byte, error) {
	if m.Listeners != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Listeners))
	}
	return b, nil
}

func (m *SendAck) parseWire(b []byte) error {
	*m = SendAck{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		if num == 1 && typ == protowire.VarintType {
			m.Listeners = uint32(x)
		}
		return nil
	})
}

func (m *Subscribe) appendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.ClientName), nil
}

func (m *Subscribe) parseWire(b []byte) error {
	*m = Subscribe{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == 1 && typ == protowire.BytesType {
			m.ClientName = string(v)
		}
		return nil
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// walk visits every field; v is set for length-delimited fields and x for varints.
// Unknown fields are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errParse
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errParse
			}
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
			b = b[n:]
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errParse
			}
			if err := fn(num, typ, nil, x); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errParse
			}
			b = b[n:]
		}
	}
	return nil
}
