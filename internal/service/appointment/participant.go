package appointment

import (
	"context"

	"mediconnect-backend/internal/domain"
)

// Participant binds the service to one authenticated user so a call
// session running in the same process can use it as its loader and
// signaling mailbox.
type Participant struct {
	svc    *Service
	userID string
}

// As returns a Participant acting for userID
func (s *Service) As(userID string) *Participant {
	return &Participant{svc: s, userID: userID}
}

func (p *Participant) Load(ctx context.Context, appointmentID string) (*domain.Appointment, error) {
	return p.svc.JoinCall(ctx, appointmentID, p.userID)
}

func (p *Participant) Complete(ctx context.Context, appointmentID string) error {
	return p.svc.CompleteCall(ctx, appointmentID, p.userID)
}

func (p *Participant) Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error) {
	return p.svc.Watch(ctx, appointmentID, p.userID, fn)
}

func (p *Participant) WriteOffer(ctx context.Context, appointmentID, descriptor string) error {
	return p.svc.WriteDescriptor(ctx, appointmentID, p.userID, domain.FieldOffer, descriptor)
}

func (p *Participant) WriteAnswer(ctx context.Context, appointmentID, descriptor string) error {
	return p.svc.WriteDescriptor(ctx, appointmentID, p.userID, domain.FieldAnswer, descriptor)
}

func (p *Participant) Clear(ctx context.Context, appointmentID string) error {
	return p.svc.ClearMailbox(ctx, appointmentID, p.userID)
}
