package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"barber-booking-api/internal/model"
)

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

const apptCols = `id, day, slot_time, slot_date::text, user_name, barber_id, user_id, status, created_at`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := row.Scan(&a.ID, &a.Day, &a.Time, &a.Date, &a.UserName, &a.BarberID, &a.UserID, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (id, user_id, user_name, barber_id, day, slot_time, slot_date, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7::date,$8)`,
		a.ID, a.UserID, a.UserName, a.BarberID, a.Day, a.Time, a.Date, StatusBooked,
	)
	if err != nil {
		return mapErr(err)
	}
	a.Status = StatusBooked
	return nil
}

func (s *Store) listAppointments(ctx context.Context, q string, arg string) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AppointmentsOnDate lists booked slots for one calendar day.
func (s *Store) AppointmentsOnDate(ctx context.Context, date string) ([]model.Appointment, error) {
	return s.listAppointments(ctx,
		`SELECT `+apptCols+` FROM appointments
		 WHERE slot_date = $1::date AND status = 'booked'
		 ORDER BY slot_time`, date)
}

func (s *Store) AppointmentsForUser(ctx context.Context, userID string) ([]model.Appointment, error) {
	return s.listAppointments(ctx,
		`SELECT `+apptCols+` FROM appointments
		 WHERE user_id = $1 AND status = 'booked'
		 ORDER BY slot_date, slot_time`, userID)
}

// RescheduleAppointment moves the user's booking at (OldDate, OldTime).
func (s *Store) RescheduleAppointment(ctx context.Context, ch model.AppointmentChange, newDay string) (*model.Appointment, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE appointments
		 SET slot_time = $1, slot_date = $2::date, day = $3, updated_at = NOW()
		 WHERE user_id = $4 AND slot_date = $5::date AND slot_time = $6 AND status = 'booked'
		 RETURNING `+apptCols,
		ch.NewTime, ch.NewDate, newDay, ch.UserID, ch.OldDate, ch.OldTime,
	)
	return scanAppointment(row)
}

// CancelAppointment soft-deletes a booking. Admins may cancel anyone's; the
// optional time and date narrow the match when given.
func (s *Store) CancelAppointment(ctx context.Context, del model.AppointmentDelete, admin bool) (*model.Appointment, error) {
	q := `UPDATE appointments SET status = 'cancelled', updated_at = NOW()
		  WHERE id = $1 AND status = 'booked' AND ($2 OR user_id = $3)`
	args := []any{del.AppointmentID, admin, del.UserID}
	if del.Time != nil {
		args = append(args, *del.Time)
		q += ` AND slot_time = $4`
	}
	if del.Date != nil {
		args = append(args, *del.Date)
		if del.Time != nil {
			q += ` AND slot_date = $5::date`
		} else {
			q += ` AND slot_date = $4::date`
		}
	}
	q += ` RETURNING ` + apptCols
	return scanAppointment(s.pool.QueryRow(ctx, q, args...))
}
