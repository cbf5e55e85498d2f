package model

import "time"

// DefaultUserID is what receivers see when a booking update is sent without a user id.
const DefaultUserID = "DEFAULT_EMPTY"

type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Name          string
	IsAdmin       bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Appointment is the read model handed to the frontend. Day is the weekday name,
// Time the slot label ("14:30") and Date the calendar day ("2024-05-01").
type Appointment struct {
	ID        string    `json:"id"`
	Day       string    `json:"day"`
	Time      string    `json:"time"`
	Date      string    `json:"date"`
	UserName  string    `json:"userName"`
	BarberID  string    `json:"barberId"`
	UserID    string    `json:"userId,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AppointmentChange asks to move a user's appointment from (OldDate, OldTime)
// to (NewDate, NewTime).
type AppointmentChange struct {
	UserID  string `json:"userId"`
	NewTime string `json:"newTime"`
	NewDate string `json:"newDate"`
	OldTime string `json:"oldTime"`
	OldDate string `json:"oldDate"`
}

// AppointmentDelete identifies an appointment by id; Time and Date are optional.
type AppointmentDelete struct {
	AppointmentID string  `json:"appointmentId"`
	UserID        string  `json:"userId"`
	Time          *string `json:"time,omitempty"`
	Date          *string `json:"date,omitempty"`
}

type UserActivityNotification struct {
	ID          string    `json:"id"`
	MessageType string    `json:"messageType"`
	Message     string    `json:"message"`
	UserType    string    `json:"userType"`
	Timestamp   time.Time `json:"timestamp"`
}

// BookingUpdate is the payload of the ReceiveBookingUpdate event.
type BookingUpdate struct {
	Date         string                    `json:"date"`
	UserID       string                    `json:"userId"`
	Admin        bool                      `json:"admin"`
	Notification *UserActivityNotification `json:"notification"`
}

func (u BookingUpdate) WithDefaults() BookingUpdate {
	if u.UserID == "" {
		u.UserID = DefaultUserID
	}
	return u
}

// activity message types
const (
	ActivityBooked      = "booking"
	ActivityRescheduled = "reschedule"
	ActivityCancelled   = "cancellation"
)

// user types carried on activity notifications
const (
	UserTypeAdmin    = "admin"
	UserTypeCustomer = "user"
)
