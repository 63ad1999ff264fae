package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppointmentStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{StatusScheduled, StatusInProgress, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusScheduled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestAppointment_Snapshot_CopiesFields(t *testing.T) {
	offer := `{"type":"offer","sdp":"v=0"}`
	appt := &Appointment{ID: "appt-1", Offer: &offer}

	snap := appt.Snapshot()
	*appt.Offer = "changed"

	assert.True(t, snap.Exists)
	assert.Equal(t, `{"type":"offer","sdp":"v=0"}`, *snap.Offer)
	assert.Nil(t, snap.Answer)
	assert.Equal(t, snap.Offer, snap.Field(FieldOffer))
}

func TestAppointment_IsParticipant(t *testing.T) {
	appt := &Appointment{DoctorID: "doc-1", PatientID: "pat-1"}

	assert.True(t, appt.IsParticipant("doc-1"))
	assert.True(t, appt.IsParticipant("pat-1"))
	assert.False(t, appt.IsParticipant("someone"))
	assert.False(t, appt.IsParticipant(""))
	assert.True(t, appt.IsDoctor("doc-1"))
	assert.False(t, appt.IsDoctor("pat-1"))
}
