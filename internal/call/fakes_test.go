package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/media"
)

// fakeNet pairs fake peers the way two browsers would find each other:
// the responder answers the offer it was given and the initiator connects
// to whoever answered.
type fakeNet struct {
	mu      sync.Mutex
	peers   []*fakePeer
	created int32
	// failNew makes the factory fail
	failNew error
}

func (n *fakeNet) factory(cfg PeerConfig, events PeerEvents) (Peer, error) {
	if n.failNew != nil {
		return nil, n.failNew
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	id := int(atomic.AddInt32(&n.created, 1))
	p := &fakePeer{net: n, id: id, cfg: cfg, events: events}
	n.peers = append(n.peers, p)
	if cfg.Initiator {
		go p.emitSignal(fmt.Sprintf("offer|%d", id))
	}
	return p, nil
}

func (n *fakeNet) Created() int {
	return int(atomic.LoadInt32(&n.created))
}

func (n *fakeNet) peer(initiator bool) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		if p.cfg.Initiator == initiator {
			return p
		}
	}
	return nil
}

func (n *fakeNet) byID(id string) *fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		if fmt.Sprint(p.id) == id {
			return p
		}
	}
	return nil
}

type fakePeer struct {
	net    *fakeNet
	id     int
	cfg    PeerConfig
	events PeerEvents

	mu          sync.Mutex
	remote      string
	counterpart *fakePeer
	destroyed   bool
	signals     int
	replaced    []*media.Track
	// failNext makes the next well-formed Signal fail as if the remote
	// description was refused
	failNext error
}

var errRemoteAlreadySet = errors.New("remote description already set")

func (p *fakePeer) alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.destroyed
}

func (p *fakePeer) emitSignal(descriptor string) {
	if p.alive() && p.events.OnSignal != nil {
		p.events.OnSignal(descriptor)
	}
}

func (p *fakePeer) emitConnected(other *fakePeer) {
	if !p.alive() {
		return
	}
	p.events.OnStream(media.RemoteStream{
		ID:     fmt.Sprintf("stream-%d", other.id),
		Tracks: []media.RemoteTrack{{ID: "a", Kind: media.KindAudio}, {ID: "v", Kind: media.KindVideo}},
	})
	if p.alive() {
		p.events.OnConnect()
	}
}

// Signal rejects a second remote description, like a real peer library
func (p *fakePeer) Signal(descriptor string) error {
	parts := strings.Split(descriptor, "|")
	if len(parts) < 2 || (parts[0] != "offer" && parts[0] != "answer") {
		return fmt.Errorf("%w %q", ErrBadDescriptor, descriptor)
	}

	p.mu.Lock()
	p.signals++
	if p.destroyed {
		p.mu.Unlock()
		return errors.New("peer destroyed")
	}
	if err := p.failNext; err != nil {
		p.failNext = nil
		p.mu.Unlock()
		return err
	}
	if p.remote != "" {
		p.mu.Unlock()
		return errRemoteAlreadySet
	}
	p.remote = descriptor
	p.mu.Unlock()

	switch {
	case parts[0] == "offer" && !p.cfg.Initiator:
		go p.emitSignal(fmt.Sprintf("answer|%d|%s", p.id, parts[1]))
	case parts[0] == "answer" && p.cfg.Initiator:
		other := p.net.byID(parts[1])
		if other == nil {
			return nil
		}
		p.link(other)
		other.link(p)
		go p.emitConnected(other)
		go other.emitConnected(p)
	}
	return nil
}

func (p *fakePeer) link(other *fakePeer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counterpart = other
}

func (p *fakePeer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote != ""
}

func (p *fakePeer) ReplaceVideoTrack(track *media.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return errors.New("peer destroyed")
	}
	p.replaced = append(p.replaced, track)
	return nil
}

// Destroy tears the link down; the counterpart sees a close
func (p *fakePeer) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	other := p.counterpart
	p.mu.Unlock()

	if other != nil {
		go other.remoteClosed()
	}
	return nil
}

func (p *fakePeer) remoteClosed() {
	if p.alive() && p.events.OnClose != nil {
		p.events.OnClose()
	}
}

// fail reports a transport error
func (p *fakePeer) fail(err error) {
	if p.alive() {
		p.events.OnError(err)
	}
}

func (p *fakePeer) FailNextSignal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

func (p *fakePeer) SignalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signals
}

func (p *fakePeer) Replaced() []*media.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*media.Track, len(p.replaced))
	copy(out, p.replaced)
	return out
}

func (p *fakePeer) Destroyed() bool {
	return !p.alive()
}

// fakeClock runs scheduled work only when the test says so
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTask
	timers  []*fakeTask
}

type fakeTask struct {
	d       time.Duration
	fn      func()
	stopped int32
}

func (t *fakeTask) stop() { atomic.StoreInt32(&t.stopped, 1) }

func (t *fakeTask) active() bool { return atomic.LoadInt32(&t.stopped) == 0 }

func (c *fakeClock) Every(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTask{d: d, fn: fn}
	c.tickers = append(c.tickers, t)
	return t.stop
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTask{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t.stop
}

// Tick fires every running ticker n times
func (c *fakeClock) Tick(n int) {
	c.mu.Lock()
	tickers := append([]*fakeTask(nil), c.tickers...)
	c.mu.Unlock()
	for i := 0; i < n; i++ {
		for _, t := range tickers {
			if t.active() {
				t.fn()
			}
		}
	}
}

// FireTimers runs every pending timer once
func (c *fakeClock) FireTimers() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	fired := 0
	for _, t := range timers {
		if t.active() {
			t.stop()
			t.fn()
			fired++
		}
	}
	return fired
}

func (c *fakeClock) PendingTimers() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if t.active() {
			out = append(out, t.d)
		}
	}
	return out
}

type fakeNavigator struct {
	mu      sync.Mutex
	paths   []string
	reloads int
}

func (n *fakeNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *fakeNavigator) Reload() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
}

func (n *fakeNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func (n *fakeNavigator) Reloads() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reloads
}

type fakePrompter struct {
	accept   bool
	prompted int32
	message  atomic.Value
}

func (p *fakePrompter) ConfirmReconnect(_ context.Context, message string) bool {
	atomic.AddInt32(&p.prompted, 1)
	p.message.Store(message)
	return p.accept
}

// MockLoader and MockMailbox cover failure paths the real service cannot produce
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, appointmentID string) (*domain.Appointment, error) {
	args := m.Called(ctx, appointmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Appointment), args.Error(1)
}

func (m *MockLoader) Complete(ctx context.Context, appointmentID string) error {
	args := m.Called(ctx, appointmentID)
	return args.Error(0)
}

type MockMailbox struct {
	mock.Mock
}

func (m *MockMailbox) Subscribe(ctx context.Context, appointmentID string, fn func(domain.Snapshot)) (func(), error) {
	args := m.Called(ctx, appointmentID, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func (m *MockMailbox) WriteOffer(ctx context.Context, appointmentID, descriptor string) error {
	args := m.Called(ctx, appointmentID, descriptor)
	return args.Error(0)
}

func (m *MockMailbox) WriteAnswer(ctx context.Context, appointmentID, descriptor string) error {
	args := m.Called(ctx, appointmentID, descriptor)
	return args.Error(0)
}

func (m *MockMailbox) Clear(ctx context.Context, appointmentID string) error {
	args := m.Called(ctx, appointmentID)
	return args.Error(0)
}
