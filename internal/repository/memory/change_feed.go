package memory

import (
	"context"
	"sync"

	"mediconnect-backend/internal/domain"
)

const subscriberBuffer = 16

type subscriber struct {
	ch   chan domain.Snapshot
	done chan struct{}
}

// ChangeFeed fans mailbox snapshots out to in-process subscribers.
// A slow subscriber loses intermediate snapshots, never the latest one.
type ChangeFeed struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewChangeFeed creates an empty feed
func NewChangeFeed() *ChangeFeed {
	return &ChangeFeed{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers snap to every subscriber of its appointment
func (f *ChangeFeed) Publish(ctx context.Context, snap domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[snap.AppointmentID] {
		for {
			select {
			case s.ch <- snap:
			default:
				// full: drop the oldest pending snapshot and retry
				select {
				case <-s.ch:
				default:
				}
				continue
			}
			break
		}
	}
	return nil
}

// Subscribe calls fn for every snapshot of appointmentID, one at a time,
// until cancel is called or ctx is done.
func (f *ChangeFeed) Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error) {
	s := &subscriber{
		ch:   make(chan domain.Snapshot, subscriberBuffer),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.subs[appointmentID] == nil {
		f.subs[appointmentID] = make(map[*subscriber]struct{})
	}
	f.subs[appointmentID][s] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[appointmentID], s)
			if len(f.subs[appointmentID]) == 0 {
				delete(f.subs, appointmentID)
			}
			f.mu.Unlock()
			close(s.done)
		})
	}

	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				cancel()
				return
			case snap := <-s.ch:
				select {
				case <-s.done:
					return
				default:
				}
				fn(snap)
			}
		}
	}()

	return cancel, nil
}

// Subscribers returns the number of live subscriptions for appointmentID
func (f *ChangeFeed) Subscribers(appointmentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[appointmentID])
}
