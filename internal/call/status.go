// Package call coordinates one side of a two-party consultation call: it
// loads the appointment, acquires local media, negotiates a peer
// connection through the appointment's offer/answer mailbox, exposes the
// in-call controls and tears everything down when the call ends.
package call

import (
	"mediconnect-backend/internal/domain"
	"mediconnect-backend/pkg/constants"
)

// Status is the lifecycle state of a call session
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusEnded        Status = "ended"
)

var transitions = map[Status][]Status{
	StatusInitializing: {StatusConnecting, StatusError, StatusEnded},
	StatusConnecting:   {StatusConnected, StatusError, StatusEnded},
	StatusConnected:    {StatusError, StatusEnded},
	StatusError:        {StatusEnded},
}

func (s Status) canTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Role is the fixed part a participant plays in the negotiation handshake
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// RoleFor returns the negotiation role of localUserID. The patient always
// initiates.
func RoleFor(localUserID, patientID string) Role {
	if localUserID == patientID {
		return RoleInitiator
	}
	return RoleResponder
}

// DashboardFor returns where localUserID lands after leaving the call
func DashboardFor(appt *domain.Appointment, localUserID string) string {
	if appt != nil && appt.IsDoctor(localUserID) {
		return constants.DoctorDashboardPath
	}
	return constants.PatientDashboardPath
}

// remoteField is the mailbox slot written by the counterpart
func (r Role) remoteField() domain.MailboxField {
	if r == RoleInitiator {
		return domain.FieldAnswer
	}
	return domain.FieldOffer
}

// localField is the mailbox slot this role writes
func (r Role) localField() domain.MailboxField {
	if r == RoleInitiator {
		return domain.FieldOffer
	}
	return domain.FieldAnswer
}
