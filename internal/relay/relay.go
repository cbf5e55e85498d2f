// Package relay re-broadcasts booking updates to every connected client.
//
// It keeps no state of its own: the set of subscribers lives in a Registry
// owned by the caller, and cross-instance delivery goes through an optional
// Backplane. Updates are not filtered or acknowledged.
package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"barber-booking-api/internal/metrics"
	"barber-booking-api/internal/model"
)

const (
	// MethodSendBookingUpdate is the operation clients invoke.
	MethodSendBookingUpdate = "SendBookingUpdate"
	// EventReceiveBookingUpdate is the event every subscriber receives.
	EventReceiveBookingUpdate = "ReceiveBookingUpdate"
)

// Backplane carries updates between instances. Publish must eventually cause
// FanOut to run exactly once on every instance, this one included.
type Backplane interface {
	Publish(ctx context.Context, u model.BookingUpdate) error
}

type Relay struct {
	reg Registry
	bp  Backplane
	log *zap.Logger
}

type Option func(*Relay)

func WithBackplane(bp Backplane) Option {
	return func(r *Relay) { r.bp = bp }
}

func New(reg Registry, log *zap.Logger, opts ...Option) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Relay{reg: reg, log: log}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Relay) Registry() Registry { return r.reg }

// SendBookingUpdate broadcasts u to all connected clients after filling in
// defaults. Only a backplane failure is reported back.
func (r *Relay) SendBookingUpdate(ctx context.Context, u model.BookingUpdate) error {
	u = u.WithDefaults()
	if r.bp == nil {
		metrics.BookingUpdatesSent.WithLabelValues("local").Inc()
		r.FanOut(u)
		return nil
	}
	if err := r.bp.Publish(ctx, u); err != nil {
		return fmt.Errorf("publish booking update: %w", err)
	}
	metrics.BookingUpdatesSent.WithLabelValues("backplane").Inc()
	return nil
}

// FanOut hands u to every registered connection and returns how many took it.
func (r *Relay) FanOut(u model.BookingUpdate) int {
	n := 0
	for _, c := range r.reg.Snapshot() {
		if err := c.Deliver(u); err != nil {
			metrics.BookingUpdateDrops.Inc()
			r.log.Debug("booking update dropped", zap.String("conn", c.ID()), zap.Error(err))
			continue
		}
		n++
	}
	metrics.BookingUpdateDeliveries.Add(float64(n))
	r.log.Debug("booking update fanned out",
		zap.String("date", u.Date),
		zap.String("user_id", u.UserID),
		zap.Int("deliveries", n))
	return n
}
