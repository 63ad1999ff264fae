package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when an appointment id does not resolve
var ErrNotFound = errors.New("appointment not found")

// ErrSlotTaken is returned by Create when the doctor already has a live
// appointment at that date and time
var ErrSlotTaken = errors.New("appointment slot already booked")

// AppointmentStatus is the lifecycle state of an appointment
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// DefaultReason is used when a booking carries no reason
const DefaultReason = "General consultation"

// forward lists the statuses reachable from each status.
var forward = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// Valid reports whether s is a known status
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an appointment may move from s to next.
// Moving to the current status is always allowed and is a no-op.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	if s == next {
		return true
	}
	for _, to := range forward[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Appointment is a booked consultation between a doctor and a patient.
// Offer and Answer form the signaling mailbox of the video call.
type Appointment struct {
	ID              string            `json:"id"`
	DoctorID        string            `json:"doctorId"`
	PatientID       string            `json:"patientId"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	Reason          string            `json:"reason"`
	Status          AppointmentStatus `json:"status"`
	Offer           *string           `json:"offer"`
	Answer          *string           `json:"answer"`
	CallInitiatedAt *time.Time        `json:"callInitiatedAt,omitempty"`
	CallAnsweredAt  *time.Time        `json:"callAnsweredAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       *time.Time        `json:"updatedAt,omitempty"`
}

// IsParticipant reports whether userID is the doctor or the patient
func (a *Appointment) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.DoctorID || userID == a.PatientID)
}

// IsDoctor reports whether userID is the appointment's doctor
func (a *Appointment) IsDoctor(userID string) bool {
	return userID != "" && userID == a.DoctorID
}

// Snapshot returns the current mailbox view of the appointment
func (a *Appointment) Snapshot() Snapshot {
	return Snapshot{
		AppointmentID: a.ID,
		Exists:        true,
		Offer:         copyString(a.Offer),
		Answer:        copyString(a.Answer),
	}
}

// Clone returns a deep copy
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.Offer = copyString(a.Offer)
	c.Answer = copyString(a.Answer)
	c.CallInitiatedAt = copyTime(a.CallInitiatedAt)
	c.CallAnsweredAt = copyTime(a.CallAnsweredAt)
	c.UpdatedAt = copyTime(a.UpdatedAt)
	return &c
}

// MailboxField names one of the two signaling slots
type MailboxField string

const (
	FieldOffer  MailboxField = "offer"
	FieldAnswer MailboxField = "answer"
)

// MailboxUpdate is a partial-field update of the signaling mailbox.
// Set applies only the named field; Clear resets both fields to null.
type MailboxUpdate struct {
	Field      MailboxField
	Descriptor string
	Clear      bool
	At         time.Time
}

// Snapshot is what a mailbox subscriber observes after each change
type Snapshot struct {
	AppointmentID string  `json:"appointmentId"`
	Exists        bool    `json:"exists"`
	Offer         *string `json:"offer"`
	Answer        *string `json:"answer"`
}

// Field returns the value of the named slot
func (s Snapshot) Field(f MailboxField) *string {
	if f == FieldOffer {
		return s.Offer
	}
	return s.Answer
}

// CreateAppointmentInput contains booking data
type CreateAppointmentInput struct {
	DoctorID  string
	PatientID string
	Date      string
	Time      string
	Reason    string
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
