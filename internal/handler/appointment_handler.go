package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"barber-booking-api/internal/auth"
	"barber-booking-api/internal/middleware"
	"barber-booking-api/internal/model"
	"barber-booking-api/internal/store"
)

const dateLayout = "2006-01-02"

type bookRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	BarberID string `json:"barberId"`
}

func caller(r *http.Request) auth.Identity {
	id, _ := middleware.IdentityFrom(r.Context())
	return id
}

func weekday(date string) (string, bool) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", false
	}
	return d.Weekday().String(), true
}

func (h *Handler) AppointmentsOnDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, ok := weekday(date); !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	apts, err := h.store.AppointmentsOnDate(r.Context(), date)
	if err != nil {
		h.log.Error("list appointments", zap.String("date", date), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apts)
}

func (h *Handler) MyAppointments(w http.ResponseWriter, r *http.Request) {
	apts, err := h.store.AppointmentsForUser(r.Context(), caller(r).UserID)
	if err != nil {
		h.log.Error("list own appointments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, apts)
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	var req bookRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	day, ok := weekday(req.Date)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if req.Time == "" || req.BarberID == "" {
		writeError(w, http.StatusBadRequest, "time and barberId required")
		return
	}

	apt := &model.Appointment{
		ID:       uuid.New().String(),
		Day:      day,
		Time:     req.Time,
		Date:     req.Date,
		UserName: id.Name,
		BarberID: req.BarberID,
		UserID:   id.UserID,
	}
	if err := h.store.CreateAppointment(r.Context(), apt); err != nil {
		h.log.Error("create appointment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.announce(r.Context(), id, apt.Date, model.ActivityBooked,
		fmt.Sprintf("%s booked %s on %s", displayName(id), apt.Time, apt.Date))
	writeJSON(w, http.StatusCreated, apt)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	var req model.AppointmentChange
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// only admins act on someone else's booking
	if !id.Admin || req.UserID == "" {
		req.UserID = id.UserID
	}
	newDay, ok := weekday(req.NewDate)
	if _, okOld := weekday(req.OldDate); !ok || !okOld {
		writeError(w, http.StatusBadRequest, "dates must be YYYY-MM-DD")
		return
	}
	if req.NewTime == "" || req.OldTime == "" {
		writeError(w, http.StatusBadRequest, "oldTime and newTime required")
		return
	}

	apt, err := h.store.RescheduleAppointment(r.Context(), req, newDay)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.log.Error("reschedule appointment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.announce(r.Context(), id, apt.Date, model.ActivityRescheduled,
		fmt.Sprintf("%s moved %s %s to %s %s", displayName(id), req.OldDate, req.OldTime, req.NewDate, req.NewTime))
	if req.OldDate != req.NewDate {
		// the old day's view changed too
		h.broadcast(r.Context(), model.BookingUpdate{Date: req.OldDate, UserID: id.UserID, Admin: id.Admin})
	}
	writeJSON(w, http.StatusOK, apt)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	var req model.AppointmentDelete
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointmentId required")
		return
	}
	if req.Date != nil {
		if _, ok := weekday(*req.Date); !ok {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	req.UserID = id.UserID

	apt, err := h.store.CancelAppointment(r.Context(), req, id.Admin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// 404 for other people's bookings too
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.log.Error("cancel appointment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.announce(r.Context(), id, apt.Date, model.ActivityCancelled,
		fmt.Sprintf("%s cancelled %s on %s", displayName(id), apt.Time, apt.Date))
	writeJSON(w, http.StatusOK, apt)
}

func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 200)
	}
	items, err := h.store.RecentActivity(r.Context(), limit)
	if err != nil {
		h.log.Error("recent activity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// announce records the activity and tells every connected client. Failures are
// logged; the booking change itself already succeeded.
func (h *Handler) announce(ctx context.Context, id auth.Identity, date, kind, msg string) {
	userType := model.UserTypeCustomer
	if id.Admin {
		userType = model.UserTypeAdmin
	}
	n := &model.UserActivityNotification{
		ID:          ulid.Make().String(),
		MessageType: kind,
		Message:     msg,
		UserType:    userType,
		Timestamp:   h.now().UTC(),
	}
	if err := h.store.RecordActivity(ctx, n); err != nil {
		h.log.Warn("record activity", zap.String("type", kind), zap.Error(err))
	}
	h.broadcast(ctx, model.BookingUpdate{Date: date, UserID: id.UserID, Admin: id.Admin, Notification: n})
}

func (h *Handler) broadcast(ctx context.Context, u model.BookingUpdate) {
	if err := h.relay.SendBookingUpdate(ctx, u); err != nil {
		h.log.Warn("broadcast booking update", zap.String("date", u.Date), zap.Error(err))
	}
}

func displayName(id auth.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return "A customer"
}
