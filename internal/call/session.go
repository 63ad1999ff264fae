package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mediconnect-backend/internal/domain"
	"mediconnect-backend/internal/media"
	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/logger"
)

const reconnectPrompt = "Connection error. Would you like to try reconnecting?"

// ErrNegotiationTimeout is the cause recorded when the handshake never completes
var ErrNegotiationTimeout = errors.New("negotiation timed out")

// Config wires a Session to its collaborators
type Config struct {
	AppointmentID string
	LocalUserID   string

	Loader    Loader
	Mailbox   Mailbox
	Media     media.Acquirer
	NewPeer   PeerFactory
	Navigator Navigator
	Prompter  Prompter
	Clock     Clock

	// ICEServers defaults to the public STUN list
	ICEServers []string
	// ReconnectDelay is how long the error state shows before the prompt
	ReconnectDelay time.Duration
	// NegotiationTimeout moves a stalled handshake to error; zero waits forever
	NegotiationTimeout time.Duration
}

// Session is one participant's side of a call. It owns the local media,
// the peer connection and the mailbox subscription; nothing else may touch
// them.
type Session struct {
	cfg   Config
	clock Clock
	log   *zap.Logger
	now   func() time.Time

	// ctx lives until teardown; subscriptions and signaling writes use it
	ctx    context.Context
	cancel context.CancelFunc

	startMu  sync.Mutex
	started  bool
	startErr error

	// shareMu serialises screen share switches
	shareMu sync.Mutex

	mu              sync.Mutex
	status          Status
	err             *Error
	appt            *domain.Appointment
	role            Role
	local           *media.Stream
	audio           *media.Track
	video           *media.Track
	remote          *media.RemoteStream
	peer            Peer
	peerBuilt       bool
	unsubscribe     func()
	consumed        map[string]struct{}
	localDescriptor string
	acquired        []*media.Track
	sharing         bool
	screen          *media.Track
	muted           bool
	videoOff        bool
	fullScreen      bool
	chat            []ChatMessage
	elapsed         int
	stopTimer       func()
	stopPrompt      func()
	stopNegotiation func()
	released        bool
	tornDown        bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession validates cfg and returns an initializing session
func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.AppointmentID == "":
		return nil, errors.New("call: appointment id is required")
	case cfg.LocalUserID == "":
		return nil, errors.New("call: local user id is required")
	case cfg.Loader == nil, cfg.Mailbox == nil, cfg.Media == nil, cfg.NewPeer == nil:
		return nil, errors.New("call: loader, mailbox, media and peer factory are required")
	}
	if cfg.Navigator == nil {
		cfg.Navigator = nopNavigator{}
	}
	if cfg.Prompter == nil {
		cfg.Prompter = declinePrompter{}
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = constants.DefaultSTUNServers
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = constants.ReconnectPromptDelay
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	ctx, cancel := context.WithCancel(logger.WithAppointmentID(context.Background(), cfg.AppointmentID))
	return &Session{
		cfg:   cfg,
		clock: clock,
		log: logger.With(
			zap.String("appointment_id", cfg.AppointmentID),
			zap.String("user_id", cfg.LocalUserID)),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		status:   StatusInitializing,
		consumed: make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start runs the setup sequence: load and authorize the appointment,
// acquire local media, reset the mailbox, build the peer connection and
// subscribe to the counterpart's descriptor. Only the first call does any
// work; later calls return its result.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return s.startErr
	}
	s.started = true
	s.startErr = s.start(ctx)
	return s.startErr
}

func (s *Session) start(ctx context.Context) error {
	if s.isReleased() {
		return ErrClosed
	}

	appt, err := s.cfg.Loader.Load(ctx, s.cfg.AppointmentID)
	if err != nil {
		// terminal: nothing was acquired, so there is nothing to retry
		cerr := loadError(err)
		s.mu.Lock()
		s.err = cerr
		s.transitionLocked(StatusError)
		s.mu.Unlock()
		s.log.Warn("Failed to load appointment", zap.String("kind", string(cerr.Kind)), zap.Error(err))
		s.release()
		s.finish()
		return cerr
	}
	role := RoleFor(s.cfg.LocalUserID, appt.PatientID)
	s.mu.Lock()
	s.appt = appt
	s.role = role
	s.mu.Unlock()

	stream, err := s.cfg.Media.GetUserMedia(ctx, media.Constraints{Audio: true, Video: true})
	if err != nil {
		cerr := mediaError(err)
		s.enterError(cerr)
		return cerr
	}
	if !s.adopt(stream.Tracks()...) {
		return ErrClosed
	}
	s.mu.Lock()
	s.local = stream
	if tracks := stream.AudioTracks(); len(tracks) > 0 {
		s.audio = tracks[0]
	}
	if tracks := stream.VideoTracks(); len(tracks) > 0 {
		s.video = tracks[0]
	}
	s.mu.Unlock()

	// descriptors left over from an earlier call on this appointment
	if err := s.cfg.Mailbox.Clear(ctx, s.cfg.AppointmentID); err != nil {
		s.log.Warn("Failed to reset signaling mailbox", zap.Error(err))
	}

	if err := s.connect(); err != nil {
		return err
	}
	return s.subscribe()
}

// connect builds the peer connection once both the appointment and the
// local stream are in hand. It never builds a second one.
func (s *Session) connect() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.peerBuilt || s.appt == nil || s.local == nil {
		s.mu.Unlock()
		return nil
	}
	s.peerBuilt = true
	s.transitionLocked(StatusConnecting)
	cfg := PeerConfig{
		Initiator:  s.role == RoleInitiator,
		Stream:     s.local,
		ICEServers: s.cfg.ICEServers,
		Trickle:    false,
	}
	s.mu.Unlock()

	s.log.Info("Creating peer connection", zap.Bool("initiator", cfg.Initiator))
	peer, err := s.cfg.NewPeer(cfg, PeerEvents{
		OnSignal:  s.handleLocalSignal,
		OnStream:  s.handleRemoteStream,
		OnConnect: s.handleConnect,
		OnError:   s.handlePeerError,
		OnClose:   s.handleRemoteClose,
	})
	if err != nil {
		cerr := newError(KindPeerConnection, fmt.Sprintf("Failed to establish connection: %v", err), err)
		s.enterError(cerr)
		return cerr
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		if derr := peer.Destroy(); derr != nil {
			s.log.Debug("Failed to destroy late peer", zap.Error(derr))
		}
		return ErrClosed
	}
	s.peer = peer
	s.stopTimer = s.clock.Every(constants.TimerTick, s.tick)
	if s.cfg.NegotiationTimeout > 0 && s.status == StatusConnecting {
		s.stopNegotiation = s.clock.AfterFunc(s.cfg.NegotiationTimeout, s.negotiationExpired)
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) subscribe() error {
	cancel, err := s.cfg.Mailbox.Subscribe(s.ctx, s.cfg.AppointmentID, s.handleSnapshot)
	if err != nil {
		cerr := signalingError(err)
		s.enterError(cerr)
		return cerr
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.unsubscribe = cancel
	s.mu.Unlock()
	return nil
}

// ApplyRemoteDescriptor hands the counterpart's descriptor to the peer.
// A descriptor already consumed, or one arriving after the peer recorded a
// remote description, is dropped without error. A descriptor is consumed
// once applied or rejected as malformed.
func (s *Session) ApplyRemoteDescriptor(descriptor string) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	peer := s.peer
	if peer == nil {
		s.mu.Unlock()
		return ErrNotActive
	}
	if _, seen := s.consumed[descriptor]; seen {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if peer.HasRemoteDescription() {
		return nil
	}
	err := peer.Signal(descriptor)
	// a descriptor that failed to apply stays eligible for redelivery
	if err == nil || errors.Is(err, ErrBadDescriptor) {
		s.mu.Lock()
		s.consumed[descriptor] = struct{}{}
		s.mu.Unlock()
	}
	if err != nil {
		return newError(KindSignaling, "Invalid remote descriptor", err)
	}
	s.log.Info("Applied remote descriptor")
	return nil
}

func (s *Session) handleSnapshot(snap domain.Snapshot) {
	if !snap.Exists || s.isReleased() {
		return
	}
	role := s.Role()

	if v := snap.Field(role.remoteField()); v != nil && *v != "" {
		if err := s.ApplyRemoteDescriptor(*v); err != nil {
			s.log.Warn("Ignoring remote descriptor",
				zap.String("field", string(role.remoteField())),
				zap.Error(err))
		}
	}

	// The responder clears the mailbox when it joins, which may wipe an
	// offer written before it arrived.
	if role == RoleInitiator && snap.Field(role.localField()) == nil {
		s.republishOffer()
	}
}

func (s *Session) republishOffer() {
	s.mu.Lock()
	descriptor := s.localDescriptor
	peer := s.peer
	pending := !s.released && s.status == StatusConnecting && descriptor != "" && peer != nil
	s.mu.Unlock()
	if !pending || peer.HasRemoteDescription() {
		return
	}

	if err := s.cfg.Mailbox.WriteOffer(s.ctx, s.cfg.AppointmentID, descriptor); err != nil {
		s.log.Warn("Failed to rewrite offer", zap.Error(err))
		return
	}
	s.log.Info("Offer rewritten after mailbox reset")
}

func (s *Session) handleLocalSignal(descriptor string) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	if s.localDescriptor != "" {
		s.mu.Unlock()
		s.log.Debug("Ignoring extra local descriptor")
		return
	}
	s.localDescriptor = descriptor
	role := s.role
	s.mu.Unlock()

	var err error
	if role == RoleInitiator {
		err = s.cfg.Mailbox.WriteOffer(s.ctx, s.cfg.AppointmentID, descriptor)
	} else {
		err = s.cfg.Mailbox.WriteAnswer(s.ctx, s.cfg.AppointmentID, descriptor)
	}
	if err != nil {
		if s.isReleased() {
			return
		}
		s.enterError(signalingError(err))
		return
	}
	s.log.Info("Local descriptor saved", zap.String("field", string(role.localField())))
}

func (s *Session) handleRemoteStream(stream media.RemoteStream) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.remote = &stream
	s.mu.Unlock()
	s.log.Info("Remote stream received", zap.Int("tracks", len(stream.Tracks)))
	s.markConnected()
}

func (s *Session) handleConnect() {
	s.markConnected()
}

func (s *Session) markConnected() {
	s.mu.Lock()
	if s.released || !s.transitionLocked(StatusConnected) {
		s.mu.Unlock()
		return
	}
	stop := s.stopNegotiation
	s.stopNegotiation = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.log.Info("Call connected")
}

func (s *Session) handlePeerError(err error) {
	s.enterError(peerError(err))
}

func (s *Session) negotiationExpired() {
	s.mu.Lock()
	stalled := !s.released && s.status == StatusConnecting
	s.mu.Unlock()
	if stalled {
		s.enterError(peerError(ErrNegotiationTimeout))
	}
}

// enterError records cerr, moves to error and schedules the reconnect prompt
func (s *Session) enterError(cerr *Error) {
	s.mu.Lock()
	if s.released || !s.transitionLocked(StatusError) {
		s.mu.Unlock()
		return
	}
	s.err = cerr
	stop := s.stopNegotiation
	s.stopNegotiation = nil
	s.stopPrompt = s.clock.AfterFunc(s.cfg.ReconnectDelay, s.promptReconnect)
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.log.Error("Call failed",
		zap.String("kind", string(cerr.Kind)),
		zap.String("message", cerr.Message),
		zap.Error(cerr.Err))
}

// promptReconnect offers a full restart. Accepting throws this session
// away and reloads; declining ends the call.
func (s *Session) promptReconnect() {
	s.mu.Lock()
	waiting := !s.released && s.status == StatusError
	s.mu.Unlock()
	if !waiting {
		return
	}

	if s.cfg.Prompter.ConfirmReconnect(s.ctx, reconnectPrompt) {
		s.log.Info("Reconnect accepted, reloading call")
		s.Close(context.Background())
		s.cfg.Navigator.Reload()
		return
	}
	s.log.Info("Reconnect declined, ending call")
	s.End(context.Background())
}

func (s *Session) handleRemoteClose() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StatusEnded)
	s.mu.Unlock()

	s.log.Info("Counterpart closed the connection")
	s.release()
	s.finish()
}

// transitionLocked moves to next if the state machine allows it
func (s *Session) transitionLocked(next Status) bool {
	if s.status == next || !s.status.canTransition(next) {
		return false
	}
	s.log.Debug("Call status changed",
		zap.String("from", string(s.status)),
		zap.String("status", string(next)))
	s.status = next
	return true
}

// adopt records tracks for teardown. Tracks arriving after teardown are
// stopped on the spot.
func (s *Session) adopt(tracks ...*media.Track) bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		for _, t := range tracks {
			t.Stop()
		}
		return false
	}
	s.acquired = append(s.acquired, tracks...)
	s.mu.Unlock()
	return true
}

// End is the explicit hang-up: teardown, mailbox reset, appointment
// completed and navigation to the dashboard.
func (s *Session) End(ctx context.Context) {
	s.teardown(ctx, true)
}

// Close releases everything when the call view goes away. The
// appointment is left as is since the counterpart may still be there.
func (s *Session) Close(ctx context.Context) {
	s.teardown(ctx, false)
}

func (s *Session) teardown(ctx context.Context, explicit bool) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	s.transitionLocked(StatusEnded)
	appt := s.appt
	s.mu.Unlock()

	s.release()

	if appt != nil {
		ctx, cancel := context.WithTimeout(ctx, constants.DefaultTimeout)
		defer cancel()

		if err := s.cfg.Mailbox.Clear(ctx, s.cfg.AppointmentID); err != nil {
			s.log.Warn("Teardown could not reset mailbox",
				zap.Error(newError(KindTeardown, "clear mailbox", err)))
		}
		if explicit {
			if err := s.cfg.Loader.Complete(ctx, s.cfg.AppointmentID); err != nil {
				s.log.Warn("Teardown could not complete appointment",
					zap.Error(newError(KindTeardown, "complete appointment", err)))
			}
			s.cfg.Navigator.Navigate(DashboardFor(appt, s.cfg.LocalUserID))
		}
	}

	s.log.Info("Call torn down", zap.Bool("explicit", explicit))
	s.finish()
}

// release stops every track, destroys the peer and cancels the
// subscription. It runs once; events arriving afterwards are ignored.
func (s *Session) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	tracks := s.acquired
	peer := s.peer
	stops := []func(){s.unsubscribe, s.stopTimer, s.stopPrompt, s.stopNegotiation}
	s.unsubscribe, s.stopTimer, s.stopPrompt, s.stopNegotiation = nil, nil, nil, nil
	s.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}
	if peer != nil {
		if err := peer.Destroy(); err != nil {
			s.log.Warn("Failed to destroy peer connection", zap.Error(err))
		}
	}
	for _, stop := range stops {
		if stop != nil {
			stop()
		}
	}
	s.cancel()
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Done is closed once the call has ended, locally or remotely
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the failure shown to the user, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return nil
	}
	return s.err
}

func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// Appointment returns a copy of the loaded appointment, or nil
func (s *Session) Appointment() *domain.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appt == nil {
		return nil
	}
	return s.appt.Clone()
}

// LocalStream is what the local preview renders
func (s *Session) LocalStream() *media.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *Session) RemoteStream() *media.RemoteStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}
func (nopNavigator) Reload()         {}

type declinePrompter struct{}

func (declinePrompter) ConfirmReconnect(context.Context, string) bool { return false }
