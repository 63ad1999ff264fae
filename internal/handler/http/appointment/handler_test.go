package appointment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/repository/memory"
	"mediconnect-backend/internal/service/appointment"
	"mediconnect-backend/pkg/response"
)

func setupRouter(t *testing.T) (*gin.Engine, *memory.AppointmentRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := memory.NewAppointmentRepository()
	require.NoError(t, repo.Create(context.Background(), &domain.Appointment{
		ID:        "appt-1",
		DoctorID:  "doctor-1",
		PatientID: "patient-1",
		Date:      "2026-10-20",
		Time:      "10:00",
		Reason:    "Follow-up",
		Status:    domain.StatusScheduled,
		CreatedAt: time.Now(),
	}))
	svc := appointment.NewService(repo, memory.NewChangeFeed(), nil)

	router := gin.New()
	v1 := router.Group("/v1")
	// stands in for the JWT middleware
	v1.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(v1)
	return router, repo
}

func do(router *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) response.Response {
	t.Helper()
	var raw struct {
		response.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Response
}

func TestCreateAppointment(t *testing.T) {
	router, _ := setupRouter(t)

	t.Run("books with default reason", func(t *testing.T) {
		w := do(router, http.MethodPost, "/v1/appointments", "patient-2", gin.H{
			"doctorId": "doctor-1", "patientId": "patient-2", "date": "2026-10-21", "time": "09:00",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var appt domain.Appointment
		resp := decode(t, w, &appt)
		assert.True(t, resp.Success)
		assert.Equal(t, domain.StatusScheduled, appt.Status)
		assert.Equal(t, domain.DefaultReason, appt.Reason)
		assert.NotEmpty(t, appt.ID)
	})

	t.Run("missing field", func(t *testing.T) {
		w := do(router, http.MethodPost, "/v1/appointments", "patient-2", gin.H{
			"doctorId": "doctor-1", "patientId": "patient-2", "date": "2026-10-21",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, "MISSING_FIELD", resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "time")
	})

	t.Run("slot taken", func(t *testing.T) {
		w := do(router, http.MethodPost, "/v1/appointments", "patient-3", gin.H{
			"doctorId": "doctor-1", "patientId": "patient-3", "date": "2026-10-20", "time": "10:00",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("booking for someone else", func(t *testing.T) {
		w := do(router, http.MethodPost, "/v1/appointments", "patient-3", gin.H{
			"doctorId": "doctor-1", "patientId": "patient-9", "date": "2026-10-22", "time": "10:00",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		w := do(router, http.MethodPost, "/v1/appointments", "", gin.H{})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestListAppointments(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/v1/appointments/doctor/doctor-1", "doctor-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var appts []*domain.Appointment
	decode(t, w, &appts)
	require.Len(t, appts, 1)
	assert.Equal(t, "appt-1", appts[0].ID)

	w = do(router, http.MethodGet, "/v1/appointments/doctor/doctor-1", "patient-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodGet, "/v1/appointments/patient/patient-1", "patient-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/v1/appointments/patient/patient-1", "doctor-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListAppointments_Paginated(t *testing.T) {
	router, repo := setupRouter(t)
	require.NoError(t, repo.Create(context.Background(), &domain.Appointment{
		ID: "appt-2", DoctorID: "doctor-1", PatientID: "patient-2",
		Date: "2026-10-21", Time: "09:00", Status: domain.StatusScheduled, CreatedAt: time.Now(),
	}))

	w := do(router, http.MethodGet, "/v1/appointments/doctor/doctor-1?page=2&limit=1", "doctor-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var appts []*domain.Appointment
	decode(t, w, &appts)
	assert.Len(t, appts, 1)
	assert.Equal(t, "2", w.Header().Get("X-Total-Count"))
	assert.Equal(t, "2", w.Header().Get("X-Total-Pages"))

	w = do(router, http.MethodGet, "/v1/appointments/doctor/doctor-1?page=x", "doctor-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditTrail(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/v1/appointments/appt-1/audit?limit=5", "patient-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/v1/appointments/appt-1/audit?limit=0", "patient-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/v1/appointments/appt-1/audit", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetAppointment(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodGet, "/v1/appointments/appt-1", "doctor-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/v1/appointments/appt-1", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED_PARTICIPANT", decode(t, w, nil).Error.Code)

	w = do(router, http.MethodGet, "/v1/appointments/missing", "doctor-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	router, _ := setupRouter(t)

	w := do(router, http.MethodPatch, "/v1/appointments/appt-1", "doctor-1", gin.H{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code)
	var appt domain.Appointment
	decode(t, w, &appt)
	assert.Equal(t, domain.StatusCancelled, appt.Status)

	// no way back
	w = do(router, http.MethodPatch, "/v1/appointments/appt-1", "doctor-1", gin.H{"status": "scheduled"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPatch, "/v1/appointments/appt-1", "doctor-1", gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPatch, "/v1/appointments/appt-1", "doctor-1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinAndEndCall(t *testing.T) {
	router, repo := setupRouter(t)

	w := do(router, http.MethodPost, "/v1/appointments/appt-1/join", "patient-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var appt domain.Appointment
	decode(t, w, &appt)
	assert.Equal(t, domain.StatusInProgress, appt.Status)

	w = do(router, http.MethodPost, "/v1/appointments/appt-1/join", "doctor-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/v1/appointments/appt-1/join", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/v1/appointments/appt-1/end", "doctor-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := repo.GetByID(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestMailboxWrites(t *testing.T) {
	router, repo := setupRouter(t)

	w := do(router, http.MethodPut, "/v1/appointments/appt-1/mailbox/offer", "patient-1", gin.H{"descriptor": "offer-sdp"})
	require.Equal(t, http.StatusNoContent, w.Code)

	// the doctor owns the answer slot only
	w = do(router, http.MethodPut, "/v1/appointments/appt-1/mailbox/offer", "doctor-1", gin.H{"descriptor": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPut, "/v1/appointments/appt-1/mailbox/answer", "doctor-1", gin.H{"descriptor": "answer-sdp"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodPut, "/v1/appointments/appt-1/mailbox/answer", "doctor-1", gin.H{"descriptor": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stored, err := repo.GetByID(context.Background(), "appt-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Offer)
	require.NotNil(t, stored.Answer)
	assert.Equal(t, "offer-sdp", *stored.Offer)
	assert.Equal(t, "answer-sdp", *stored.Answer)

	w = do(router, http.MethodDelete, "/v1/appointments/appt-1/mailbox", "patient-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	stored, err = repo.GetByID(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Nil(t, stored.Offer)
	assert.Nil(t, stored.Answer)
}

func TestMailboxWrite_TooLarge(t *testing.T) {
	router, _ := setupRouter(t)

	big := strings.Repeat("a", 128*1024)
	w := do(router, http.MethodPut, "/v1/appointments/appt-1/mailbox/offer", "patient-1", gin.H{"descriptor": big})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
