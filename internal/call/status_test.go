package call

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mediconnect-backend/internal/domain"
	apperrors "mediconnect-backend/pkg/errors"
)

func TestRoleFor(t *testing.T) {
	assert.Equal(t, RoleInitiator, RoleFor("patient-1", "patient-1"))
	assert.Equal(t, RoleResponder, RoleFor("doctor-1", "patient-1"))

	// same inputs, same answer
	for i := 0; i < 10; i++ {
		assert.Equal(t, RoleFor("doctor-1", "patient-1"), RoleFor("doctor-1", "patient-1"))
	}
}

func TestDashboardFor(t *testing.T) {
	appt := &domain.Appointment{DoctorID: "doctor-1", PatientID: "patient-1"}

	assert.Equal(t, "/doctor-dashboard", DashboardFor(appt, "doctor-1"))
	assert.Equal(t, "/patient-dashboard", DashboardFor(appt, "patient-1"))
}

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitializing, StatusConnecting, true},
		{StatusInitializing, StatusError, true},
		{StatusInitializing, StatusConnected, false},
		{StatusConnecting, StatusConnected, true},
		{StatusConnecting, StatusError, true},
		{StatusConnected, StatusEnded, true},
		{StatusConnected, StatusConnecting, false},
		{StatusError, StatusEnded, true},
		{StatusError, StatusConnected, false},
		{StatusEnded, StatusConnecting, false},
		{StatusEnded, StatusError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.canTransition(tt.to))
		})
	}
}

func TestLoadError_Mapping(t *testing.T) {
	assert.True(t, errors.Is(loadError(apperrors.AppointmentNotFoundError()), ErrNotFound))
	assert.True(t, errors.Is(loadError(apperrors.NotParticipantError()), ErrUnauthorized))
	assert.True(t, errors.Is(loadError(apperrors.ForbiddenError("nope")), ErrUnauthorized))
	assert.True(t, errors.Is(loadError(errors.New("connection refused")), ErrLoad))

	err := loadError(apperrors.AppointmentNotFoundError())
	assert.Equal(t, "Appointment not found", err.Error())
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatElapsed(0))
	assert.Equal(t, "00:01:05", FormatElapsed(65*time.Second))
	assert.Equal(t, "01:00:01", FormatElapsed(3601*time.Second))
}
