package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"barber-booking-api/internal/metrics"
	"barber-booking-api/internal/middleware"
	"barber-booking-api/internal/model"
	"barber-booking-api/internal/store"
)

// Store is the persistence the REST API needs; *store.Store satisfies it.
type Store interface {
	CreateUser(ctx context.Context, u *model.User) error
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error)
	RefreshTokenByHash(ctx context.Context, tokenHash string) (*store.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error)
	RevokeAllRefreshTokens(ctx context.Context, userID string) error

	CreateAppointment(ctx context.Context, a *model.Appointment) error
	AppointmentsOnDate(ctx context.Context, date string) ([]model.Appointment, error)
	AppointmentsForUser(ctx context.Context, userID string) ([]model.Appointment, error)
	RescheduleAppointment(ctx context.Context, ch model.AppointmentChange, newDay string) (*model.Appointment, error)
	CancelAppointment(ctx context.Context, del model.AppointmentDelete, admin bool) (*model.Appointment, error)

	RecordActivity(ctx context.Context, n *model.UserActivityNotification) error
	RecentActivity(ctx context.Context, limit int) ([]model.UserActivityNotification, error)
}

// Broadcaster is the booking relay as seen by the REST API.
type Broadcaster interface {
	SendBookingUpdate(ctx context.Context, u model.BookingUpdate) error
}

type Handler struct {
	store  Store
	relay  Broadcaster
	secret string
	log    *zap.Logger
	now    func() time.Time
}

func New(st Store, relay Broadcaster, secret string, log *zap.Logger) *Handler {
	return &Handler{store: st, relay: relay, secret: secret, log: log, now: time.Now}
}

// Routes builds the /api subtree. rl limits the credential endpoints.
func (h *Handler) Routes(rl *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.Recoverer, h.observe)

	r.Route("/auth", func(ar chi.Router) {
		ar.Use(middleware.HTTPRateLimit(rl))
		ar.Post("/register", h.Register)
		ar.Post("/signin", h.SignIn)
		ar.Post("/refresh", h.Refresh)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireAuth(h.secret))

		pr.Get("/appointments", h.AppointmentsOnDate)
		pr.Get("/appointments/mine", h.MyAppointments)
		pr.Post("/appointments", h.Book)
		pr.Put("/appointments", h.Reschedule)
		pr.Delete("/appointments", h.Cancel)

		pr.With(middleware.RequireAdmin).Get("/activity", h.Activity)
	})
	return r
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(ww.Status())).Observe(elapsed.Seconds())
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", chimw.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	return dec.Decode(v)
}
