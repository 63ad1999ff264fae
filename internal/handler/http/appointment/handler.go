package appointment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/service/appointment"
	"mediconnect-backend/pkg/constants"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/pagination"
	"mediconnect-backend/pkg/response"
)

// Handler handles appointment and call mailbox HTTP requests
type Handler struct {
	appointmentService *appointment.Service
}

// NewHandler creates a new appointment handler
func NewHandler(appointmentService *appointment.Service) *Handler {
	return &Handler{
		appointmentService: appointmentService,
	}
}

// CreateAppointmentRequest represents a booking request. Required fields
// are checked by the service so the error names the missing one.
type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctorId"`
	PatientID string `json:"patientId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
}

// UpdateStatusRequest represents a status change
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// DescriptorRequest carries one serialized session descriptor
type DescriptorRequest struct {
	Descriptor string `json:"descriptor"`
}

// callerID reads the authenticated user set by the auth middleware
func callerID(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return "", false
	}
	return userID, true
}

// writePage sends one page of appts, with the totals in headers when paginated
func writePage(c *gin.Context, appts []*domain.Appointment, page *pagination.Params) {
	if page != nil {
		c.Header("X-Total-Count", strconv.Itoa(len(appts)))
		c.Header("X-Total-Pages", strconv.Itoa(pagination.CalculateTotalPages(len(appts), page.Limit)))
	}
	response.Success(c, http.StatusOK, pagination.Window(appts, page))
}

// CreateAppointment books an appointment for the calling patient
// POST /v1/appointments
func (h *Handler) CreateAppointment(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "Invalid request body")
		return
	}

	appt, err := h.appointmentService.Create(c.Request.Context(), userID, &domain.CreateAppointmentInput{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		Time:      req.Time,
		Reason:    req.Reason,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, appt)
}

// ListDoctorAppointments lists the calling doctor's appointments
// GET /v1/appointments/doctor/:doctorId
func (h *Handler) ListDoctorAppointments(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	appts, err := h.appointmentService.ListByDoctor(c.Request.Context(), userID, c.Param("doctorId"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	writePage(c, appts, page)
}

// ListPatientAppointments lists the calling patient's appointments
// GET /v1/appointments/patient/:patientId
func (h *Handler) ListPatientAppointments(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	page, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	appts, err := h.appointmentService.ListByPatient(c.Request.Context(), userID, c.Param("patientId"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	writePage(c, appts, page)
}

// GetAppointment returns one appointment to a participant
// GET /v1/appointments/:id
func (h *Handler) GetAppointment(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	appt, err := h.appointmentService.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, appt)
}

// UpdateStatus moves an appointment forward in its lifecycle
// PATCH /v1/appointments/:id
func (h *Handler) UpdateStatus(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "status is required")
		return
	}

	appt, err := h.appointmentService.UpdateStatus(c.Request.Context(), c.Param("id"), userID, domain.AppointmentStatus(req.Status))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, appt)
}

// JoinCall loads the appointment for a call and marks it in progress
// POST /v1/appointments/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	appt, err := h.appointmentService.JoinCall(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, appt)
}

// EndCall completes the appointment after a hang-up
// POST /v1/appointments/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.appointmentService.CompleteCall(c.Request.Context(), id, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":       "Call ended",
		"appointmentId": id,
	})
}

// WriteOffer stores the patient's offer
// PUT /v1/appointments/:id/mailbox/offer
func (h *Handler) WriteOffer(c *gin.Context) {
	h.writeDescriptor(c, domain.FieldOffer)
}

// WriteAnswer stores the doctor's answer
// PUT /v1/appointments/:id/mailbox/answer
func (h *Handler) WriteAnswer(c *gin.Context) {
	h.writeDescriptor(c, domain.FieldAnswer)
}

func (h *Handler) writeDescriptor(c *gin.Context, field domain.MailboxField) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, constants.MaxDescriptorBytes)
	var req DescriptorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, string(apperrors.ErrCodeValidation), "Descriptor too large")
			return
		}
		response.ValidationError(c, "Invalid request body")
		return
	}

	if err := h.appointmentService.WriteDescriptor(c.Request.Context(), c.Param("id"), userID, field, req.Descriptor); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ClearMailbox resets both mailbox slots
// DELETE /v1/appointments/:id/mailbox
func (h *Handler) ClearMailbox(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.appointmentService.ClearMailbox(c.Request.Context(), c.Param("id"), userID); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AuditTrail returns the newest lifecycle events of an appointment
// GET /v1/appointments/:id/audit
func (h *Handler) AuditTrail(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.ValidationError(c, "Invalid limit parameter")
			return
		}
		limit = n
	}

	events, err := h.appointmentService.AuditTrail(c.Request.Context(), c.Param("id"), userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, events)
}

// RegisterRoutes mounts the appointment routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	appts := rg.Group("/appointments")
	appts.POST("", h.CreateAppointment)
	appts.GET("/doctor/:doctorId", h.ListDoctorAppointments)
	appts.GET("/patient/:patientId", h.ListPatientAppointments)
	appts.GET("/:id", h.GetAppointment)
	appts.PATCH("/:id", h.UpdateStatus)
	appts.POST("/:id/join", h.JoinCall)
	appts.POST("/:id/end", h.EndCall)
	appts.PUT("/:id/mailbox/offer", h.WriteOffer)
	appts.PUT("/:id/mailbox/answer", h.WriteAnswer)
	appts.DELETE("/:id/mailbox", h.ClearMailbox)
	appts.GET("/:id/audit", h.AuditTrail)
}
