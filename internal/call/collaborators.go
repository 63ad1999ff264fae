package call

import (
	"context"
	"sync"
	"time"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/media"
)

// Loader fetches and authorizes the appointment and records its completion
type Loader interface {
	Load(ctx context.Context, appointmentID string) (*domain.Appointment, error)
	Complete(ctx context.Context, appointmentID string) error
}

// Mailbox is the two-slot signaling channel stored on the appointment.
// Subscribers may see coalesced or repeated snapshots.
type Mailbox interface {
	Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error)
	WriteOffer(ctx context.Context, appointmentID, descriptor string) error
	WriteAnswer(ctx context.Context, appointmentID, descriptor string) error
	Clear(ctx context.Context, appointmentID string) error
}

// PeerConfig is what a peer connection is constructed with
type PeerConfig struct {
	Initiator  bool
	Stream     *media.Stream
	ICEServers []string
	// Trickle is always false: each side sends one complete descriptor
	Trickle bool
}

// PeerEvents receives everything a peer connection reports. Callbacks may
// arrive on any goroutine.
type PeerEvents struct {
	OnSignal  func(descriptor string)
	OnStream  func(stream media.RemoteStream)
	OnConnect func()
	OnError   func(err error)
	OnClose   func()
}

// Peer is one peer connection
type Peer interface {
	// Signal applies the counterpart's descriptor
	Signal(descriptor string) error
	HasRemoteDescription() bool
	// ReplaceVideoTrack swaps the outgoing video without renegotiating
	ReplaceVideoTrack(track *media.Track) error
	// Destroy releases the connection; no events fire afterwards
	Destroy() error
}

// PeerFactory constructs a peer connection
type PeerFactory func(cfg PeerConfig, events PeerEvents) (Peer, error)

// Navigator moves the user between views
type Navigator interface {
	Navigate(path string)
	// Reload restarts the call view from scratch
	Reload()
}

// Prompter asks the user a yes/no question
type Prompter interface {
	ConfirmReconnect(ctx context.Context, message string) bool
}

// Clock schedules the call timer and delayed actions
type Clock interface {
	Every(d time.Duration, fn func()) (stop func())
	AfterFunc(d time.Duration, fn func()) (stop func())
}

type realClock struct{}

func (realClock) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (realClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
