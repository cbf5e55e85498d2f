package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"barber-booking-api/internal/model"
	"barber-booking-api/internal/relay"
)

// frame types, numbered the way SignalR's JSON hub protocol numbers them
const (
	frameInvocation = 1
	frameCompletion = 3
	framePing       = 6
	frameClose      = 7
)

var (
	ErrUnknownTarget = errors.New("unknown hub method")
	ErrBadArguments  = errors.New("invalid arguments")
)

type inbound struct {
	Type         int               `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
}

type outbound struct {
	Type         int    `json:"type"`
	InvocationID string `json:"invocationId,omitempty"`
	Target       string `json:"target,omitempty"`
	Arguments    []any  `json:"arguments,omitempty"`
	Error        string `json:"error,omitempty"`
}

// decodeUpdate reads positional (date, userId, admin, notification). Missing
// or null trailing arguments keep their zero value and defaults apply later.
func decodeUpdate(args []json.RawMessage) (model.BookingUpdate, error) {
	var u model.BookingUpdate
	if len(args) == 0 || len(args) > 4 {
		return u, fmt.Errorf("%w: want 1-4 arguments, got %d", ErrBadArguments, len(args))
	}
	dst := []any{&u.Date, &u.UserID, &u.Admin, &u.Notification}
	for i, raw := range args {
		if isNull(raw) {
			continue
		}
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return u, fmt.Errorf("%w: argument %d: %v", ErrBadArguments, i, err)
		}
	}
	return u, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func encodeEvent(u model.BookingUpdate) ([]byte, error) {
	return json.Marshal(outbound{
		Type:      frameInvocation,
		Target:    relay.EventReceiveBookingUpdate,
		Arguments: []any{u.Date, u.UserID, u.Admin, u.Notification},
	})
}

func encodeCompletion(id string, err error) ([]byte, error) {
	f := outbound{Type: frameCompletion, InvocationID: id}
	if err != nil {
		f.Error = err.Error()
	}
	return json.Marshal(f)
}
