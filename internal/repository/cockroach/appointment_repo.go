package cockroach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/pkg/database"
	"mediconnect-backend/pkg/metrics"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

const appointmentColumns = `id, doctor_id, patient_id, date, time, reason, status,
	offer, answer, call_initiated_at, call_answered_at, created_at, updated_at`

// AppointmentRepository handles appointment persistence in CockroachDB
type AppointmentRepository struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(pool *pgxpool.Pool, m *metrics.Metrics) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, metrics: m}
}

func (r *AppointmentRepository) observe(op string, start time.Time, err error) {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrSlotTaken) {
		err = nil
	}
	r.metrics.RecordDBQuery(op, time.Since(start), err)
}

// Create inserts a new appointment
func (r *AppointmentRepository) Create(ctx context.Context, appt *domain.Appointment) (err error) {
	defer func(start time.Time) { r.observe("appointment_create", start, err) }(time.Now())

	query := `
		INSERT INTO appointments (id, doctor_id, patient_id, date, time, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		appt.ID,
		appt.DoctorID,
		appt.PatientID,
		appt.Date,
		appt.Time,
		appt.Reason,
		appt.Status,
		appt.CreatedAt,
	)
	if err != nil {
		if isSlotViolation(err) {
			return domain.ErrSlotTaken
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// isSlotViolation reports a unique violation on the doctor slot index
func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return pgErr.ConstraintName == database.SlotIndex || strings.Contains(pgErr.Message, database.SlotIndex)
}

// GetByID retrieves an appointment by id
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (appt *domain.Appointment, err error) {
	defer func(start time.Time) { r.observe("appointment_get", start, err) }(time.Now())

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err = scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// ListByDoctor returns the doctor's appointments
func (r *AppointmentRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*domain.Appointment, error) {
	return r.list(ctx, "appointment_list_doctor", `doctor_id = $1`, doctorID)
}

// ListByPatient returns the patient's appointments
func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]*domain.Appointment, error) {
	return r.list(ctx, "appointment_list_patient", `patient_id = $1`, patientID)
}

func (r *AppointmentRepository) list(ctx context.Context, op, where, arg string) (out []*domain.Appointment, err error) {
	defer func(start time.Time) { r.observe(op, start, err) }(time.Now())

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + where + ` ORDER BY date, time`
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	out = make([]*domain.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return out, nil
}

// SlotTaken reports whether the doctor already has a live booking at date/time
func (r *AppointmentRepository) SlotTaken(ctx context.Context, doctorID, date, slot string) (taken bool, err error) {
	defer func(start time.Time) { r.observe("appointment_slot", start, err) }(time.Now())

	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND time = $3 AND status != 'cancelled'
		)
	`
	if err = r.pool.QueryRow(ctx, query, doctorID, date, slot).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return taken, nil
}

// TransitionStatus is a compare-and-set on status. It reports false when
// the row exists but is no longer in from.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.AppointmentStatus) (changed bool, err error) {
	defer func(start time.Time) { r.observe("appointment_transition", start, err) }(time.Now())

	query := `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`
	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update appointment status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err = r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check appointment: %w", err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

// UpdateMailbox writes only the named signaling field and its timestamp,
// or clears both fields.
func (r *AppointmentRepository) UpdateMailbox(ctx context.Context, id string, upd domain.MailboxUpdate) (appt *domain.Appointment, err error) {
	defer func(start time.Time) { r.observe("appointment_mailbox", start, err) }(time.Now())

	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	var query string
	args := []any{id, at}
	switch {
	case upd.Clear:
		query = `UPDATE appointments SET offer = NULL, answer = NULL, updated_at = $2 WHERE id = $1`
	case upd.Field == domain.FieldOffer:
		query = `UPDATE appointments SET offer = $3, call_initiated_at = $2, updated_at = $2 WHERE id = $1`
		args = append(args, upd.Descriptor)
	case upd.Field == domain.FieldAnswer:
		query = `UPDATE appointments SET answer = $3, call_answered_at = $2, updated_at = $2 WHERE id = $1`
		args = append(args, upd.Descriptor)
	default:
		return nil, fmt.Errorf("unknown mailbox field %q", upd.Field)
	}

	query += ` RETURNING ` + appointmentColumns
	appt, err = scanAppointment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update mailbox: %w", err)
	}
	return appt, nil
}

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var a domain.Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Status,
		&a.Offer,
		&a.Answer,
		&a.CallInitiatedAt,
		&a.CallAnsweredAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
