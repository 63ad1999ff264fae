package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/pkg/audit"
	apperrors "mediconnect-backend/pkg/errors"
	"mediconnect-backend/pkg/logger"
	"mediconnect-backend/pkg/metrics"
	"mediconnect-backend/pkg/sanitize"
)

// Repository is the appointment store
type Repository interface {
	// Create returns domain.ErrSlotTaken if the doctor's slot is already booked
	Create(ctx context.Context, appt *domain.Appointment) error
	GetByID(ctx context.Context, id string) (*domain.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*domain.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error)
	SlotTaken(ctx context.Context, doctorID, date, slot string) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.AppointmentStatus) (bool, error)
	UpdateMailbox(ctx context.Context, id string, upd domain.MailboxUpdate) (*domain.Appointment, error)
}

// ChangeFeed carries mailbox snapshots to live subscribers
type ChangeFeed interface {
	Publish(ctx context.Context, snap domain.Snapshot) error
	Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error)
}

// Auditor keeps the per-appointment audit trail
type Auditor interface {
	Log(ctx context.Context, event *audit.Event) error
	Events(ctx context.Context, appointmentID string, limit int) ([]*audit.Event, error)
}

// Service handles appointment business logic and the signaling mailbox
type Service struct {
	repo    Repository
	feed    ChangeFeed
	auditor Auditor
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Service
type Option func(*Service)

// WithAuditor records lifecycle events to a
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// NewService creates a new appointment service
func NewService(repo Repository, feed ChangeFeed, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		feed:    feed,
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record writes an audit event; a failing audit store never fails the request
func (s *Service) record(ctx context.Context, event *audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, event); err != nil {
		logger.FromContext(ctx).Warn("Failed to record audit event",
			zap.String("event_type", string(event.Type)),
			zap.String("appointment_id", event.AppointmentID),
			zap.Error(err))
	}
}

// load fetches id and checks that userID takes part in it
func (s *Service) load(ctx context.Context, id, userID string) (*domain.Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.AppointmentNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !appt.IsParticipant(userID) {
		return nil, apperrors.NotParticipantError()
	}
	return appt, nil
}

// Create books a new appointment for the calling patient
func (s *Service) Create(ctx context.Context, callerID string, input *domain.CreateAppointmentInput) (*domain.Appointment, error) {
	required := []struct{ name, value string }{
		{"doctorId", input.DoctorID},
		{"patientId", input.PatientID},
		{"date", input.Date},
		{"time", input.Time},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return nil, apperrors.MissingFieldError(f.name)
		}
	}
	for _, id := range []struct{ name, value string }{{"doctorId", input.DoctorID}, {"patientId", input.PatientID}} {
		if !sanitize.ValidID(id.value) {
			return nil, apperrors.ValidationError("Invalid " + id.name)
		}
	}
	if input.PatientID != callerID {
		return nil, apperrors.ForbiddenError("Appointments can only be booked for yourself")
	}

	taken, err := s.repo.SlotTaken(ctx, input.DoctorID, input.Date, input.Time)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if taken {
		return nil, apperrors.SlotTakenError()
	}

	reason := sanitize.Text(input.Reason)
	if reason == "" {
		reason = domain.DefaultReason
	}

	appt := &domain.Appointment{
		ID:        s.newID(),
		DoctorID:  input.DoctorID,
		PatientID: input.PatientID,
		Date:      input.Date,
		Time:      input.Time,
		Reason:    reason,
		Status:    domain.StatusScheduled,
		CreatedAt: s.now().UTC(),
	}
	// SlotTaken above is only a fast path; two bookings can race past it
	if err := s.repo.Create(ctx, appt); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			return nil, apperrors.SlotTakenError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	logger.FromContext(ctx).Info("Appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", appt.DoctorID),
		zap.String("patient_id", appt.PatientID))
	s.record(ctx, &audit.Event{
		AppointmentID: appt.ID,
		UserID:        callerID,
		Type:          audit.EventAppointmentBooked,
		Details:       appt.Date + " " + appt.Time,
	})
	return appt, nil
}

// Get returns an appointment visible to callerID
func (s *Service) Get(ctx context.Context, id, callerID string) (*domain.Appointment, error) {
	return s.load(ctx, id, callerID)
}

// ListByDoctor lists a doctor's appointments; only that doctor may ask
func (s *Service) ListByDoctor(ctx context.Context, callerID, doctorID string) ([]*domain.Appointment, error) {
	if callerID != doctorID {
		return nil, apperrors.ForbiddenError("Unauthorized access")
	}
	out, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return out, nil
}

// ListByPatient lists a patient's appointments; only that patient may ask
func (s *Service) ListByPatient(ctx context.Context, callerID, patientID string) ([]*domain.Appointment, error) {
	if callerID != patientID {
		return nil, apperrors.ForbiddenError("Unauthorized access")
	}
	out, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return out, nil
}

// UpdateStatus moves the appointment forward to status on behalf of a participant
func (s *Service) UpdateStatus(ctx context.Context, id, callerID string, status domain.AppointmentStatus) (*domain.Appointment, error) {
	if !status.Valid() {
		return nil, apperrors.ValidationError("Invalid status")
	}
	appt, err := s.load(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, appt, callerID, status); err != nil {
		return nil, err
	}
	return s.load(ctx, id, callerID)
}

// transition applies a forward status change with a compare-and-set,
// re-reading once if another writer got there first.
func (s *Service) transition(ctx context.Context, appt *domain.Appointment, userID string, to domain.AppointmentStatus) error {
	from := appt.Status
	for attempt := 0; attempt < 2; attempt++ {
		if from == to {
			return nil
		}
		if !from.CanTransition(to) {
			return apperrors.InvalidTransitionError(string(from), string(to))
		}
		changed, err := s.repo.TransitionStatus(ctx, appt.ID, from, to)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return apperrors.AppointmentNotFoundError()
			}
			return apperrors.DatabaseError(err)
		}
		if changed {
			s.metrics.RecordStatusChange(string(from), string(to))
			s.record(ctx, &audit.Event{
				AppointmentID: appt.ID,
				UserID:        userID,
				Type:          audit.EventStatusChanged,
				Details:       string(from) + "->" + string(to),
			})
			appt.Status = to
			return nil
		}
		current, err := s.repo.GetByID(ctx, appt.ID)
		if err != nil {
			return apperrors.DatabaseError(err)
		}
		from = current.Status
	}
	return apperrors.InvalidTransitionError(string(from), string(to))
}

// JoinCall is the session loader: it fetches the appointment, checks that
// userID is one of its two participants, and moves a scheduled appointment
// to in-progress exactly once no matter how many times it is called.
func (s *Service) JoinCall(ctx context.Context, id, userID string) (*domain.Appointment, error) {
	appt, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if appt.Status == domain.StatusScheduled {
		changed, err := s.repo.TransitionStatus(ctx, id, domain.StatusScheduled, domain.StatusInProgress)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if changed {
			s.metrics.RecordStatusChange(string(domain.StatusScheduled), string(domain.StatusInProgress))
			s.record(ctx, &audit.Event{
				AppointmentID: id,
				UserID:        userID,
				Type:          audit.EventStatusChanged,
				Details:       string(domain.StatusScheduled) + "->" + string(domain.StatusInProgress),
			})
			appt.Status = domain.StatusInProgress
		} else {
			// the other participant won the race; report what is stored now
			if appt, err = s.load(ctx, id, userID); err != nil {
				return nil, err
			}
		}
	}

	role := "patient"
	if appt.IsDoctor(userID) {
		role = "doctor"
	}
	s.metrics.RecordCallJoined(role)
	s.record(ctx, &audit.Event{AppointmentID: id, UserID: userID, Type: audit.EventCallJoined, Details: role})
	logger.FromContext(ctx).Info("Participant joined call",
		zap.String("appointment_id", id),
		zap.String("user_id", userID),
		zap.String("role", role),
		zap.String("status", string(appt.Status)))
	return appt, nil
}

// CompleteCall marks the appointment completed after an explicit hang-up
func (s *Service) CompleteCall(ctx context.Context, id, userID string) error {
	appt, err := s.load(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, appt, userID, domain.StatusCompleted); err != nil {
		return err
	}
	s.metrics.RecordCallCompleted()
	s.record(ctx, &audit.Event{AppointmentID: id, UserID: userID, Type: audit.EventCallCompleted})
	return nil
}

// WriteDescriptor stores a negotiation descriptor in the caller's own slot.
// The patient owns offer, the doctor owns answer.
func (s *Service) WriteDescriptor(ctx context.Context, id, userID string, field domain.MailboxField, descriptor string) error {
	appt, err := s.load(ctx, id, userID)
	if err != nil {
		return err
	}
	switch field {
	case domain.FieldOffer:
		if userID != appt.PatientID {
			return apperrors.WrongRoleError(string(field))
		}
	case domain.FieldAnswer:
		if userID != appt.DoctorID {
			return apperrors.WrongRoleError(string(field))
		}
	default:
		return apperrors.ValidationError("Unknown mailbox field")
	}
	if strings.TrimSpace(descriptor) == "" {
		return apperrors.MissingFieldError("descriptor")
	}
	return s.updateMailbox(ctx, id, domain.MailboxUpdate{Field: field, Descriptor: descriptor}, string(field))
}

// ClearMailbox resets both signaling slots to null
func (s *Service) ClearMailbox(ctx context.Context, id, userID string) error {
	if _, err := s.load(ctx, id, userID); err != nil {
		return err
	}
	if err := s.updateMailbox(ctx, id, domain.MailboxUpdate{Clear: true}, "clear"); err != nil {
		return err
	}
	s.record(ctx, &audit.Event{AppointmentID: id, UserID: userID, Type: audit.EventMailboxCleared})
	return nil
}

// AuditTrail returns the newest lifecycle events of an appointment to a participant
func (s *Service) AuditTrail(ctx context.Context, id, userID string, limit int) ([]*audit.Event, error) {
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}
	if s.auditor == nil {
		return []*audit.Event{}, nil
	}
	events, err := s.auditor.Events(ctx, id, limit)
	if err != nil {
		return nil, apperrors.ServiceUnavailableError("Audit trail unavailable")
	}
	return events, nil
}

func (s *Service) updateMailbox(ctx context.Context, id string, upd domain.MailboxUpdate, label string) error {
	upd.At = s.now().UTC()
	appt, err := s.repo.UpdateMailbox(ctx, id, upd)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.AppointmentNotFoundError()
		}
		return apperrors.DatabaseError(err)
	}
	s.metrics.RecordMailboxWrite(label)

	// The write is durable; a lost notification only delays readers until the next change.
	err = s.feed.Publish(ctx, appt.Snapshot())
	s.metrics.RecordSnapshotPublished("feed", err)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to publish mailbox snapshot",
			zap.String("appointment_id", id),
			zap.Error(err))
	}
	return nil
}

// Watch subscribes a participant to mailbox snapshots. The current
// snapshot is delivered first; fn is never called concurrently with itself.
func (s *Service) Watch(ctx context.Context, id, userID string, fn func(domain.Snapshot)) (func(), error) {
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		ready   bool
		pending []domain.Snapshot
	)
	cancel, err := s.feed.Subscribe(ctx, id, func(snap domain.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if !ready {
			pending = append(pending, snap)
			return
		}
		fn(snap)
	})
	if err != nil {
		return nil, apperrors.ServiceUnavailableError("Mailbox subscription unavailable")
	}
	s.metrics.AddMailboxSubscribers(1)

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		cancel()
		s.metrics.AddMailboxSubscribers(-1)
		return nil, apperrors.DatabaseError(err)
	}

	mu.Lock()
	fn(current.Snapshot())
	for _, snap := range pending {
		fn(snap)
	}
	pending = nil
	ready = true
	mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.metrics.AddMailboxSubscribers(-1)
		})
	}, nil
}
