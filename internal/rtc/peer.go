// Package rtc implements the call package's peer connection on pion/webrtc.
// Signaling is non-trickle: each side waits for ICE gathering to finish and
// emits one complete session description.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"mediconnect-backend/internal/call"
	"mediconnect-backend/internal/media"
	"mediconnect-backend/pkg/logger"
)

const hangupChannel = "mediconnect-control"

var (
	ErrDestroyed      = errors.New("peer connection destroyed")
	ErrNoVideoSender  = errors.New("no outgoing video to replace")
	ErrUnexpectedType = errors.New("unexpected descriptor type")
)

// Peer is a pion peer connection driven through call.PeerEvents
type Peer struct {
	pc        *webrtc.PeerConnection
	initiator bool
	events    call.PeerEvents
	log       *zap.Logger
	closed    chan struct{}

	mu            sync.Mutex
	destroyed     bool
	remoteSet     bool
	connected     bool
	streamEmitted bool
	videoSender   *webrtc.RTPSender
}

// NewFactory returns a call.PeerFactory building pion peers
func NewFactory() call.PeerFactory {
	return func(cfg call.PeerConfig, events call.PeerEvents) (call.Peer, error) {
		return NewPeer(cfg, events)
	}
}

func newAPI() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	), nil
}

// NewPeer creates the connection, adds every local track and, for the
// initiator, starts producing the offer.
func NewPeer(cfg call.PeerConfig, events call.PeerEvents) (*Peer, error) {
	if cfg.Trickle {
		return nil, errors.New("trickle signaling is not supported")
	}

	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, u := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:        pc,
		initiator: cfg.Initiator,
		events:    events,
		log:       logger.With(zap.Bool("initiator", cfg.Initiator)),
		closed:    make(chan struct{}),
	}

	if cfg.Stream != nil {
		for _, track := range cfg.Stream.Tracks() {
			sender, err := pc.AddTrack(track.Local())
			if err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
			}
			if track.Kind() == media.KindVideo && p.videoSender == nil {
				p.videoSender = sender
			}
			go p.readRTCP(sender)
		}
	}

	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(p.handleState)

	if cfg.Initiator {
		dc, err := pc.CreateDataChannel(hangupChannel, nil)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("create control channel: %w", err)
		}
		dc.OnClose(p.emitClose)
		go p.offer()
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == hangupChannel {
				dc.OnClose(p.emitClose)
			}
		})
	}
	return p, nil
}

// readRTCP drains sender reports so interceptors keep working
func (p *Peer) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) offer() {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.emitError(fmt.Errorf("create offer: %w", err))
		return
	}
	p.publishLocal(offer)
}

func (p *Peer) answer() {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.emitError(fmt.Errorf("create answer: %w", err))
		return
	}
	p.publishLocal(answer)
}

// publishLocal sets desc and emits it once gathering has finished
func (p *Peer) publishLocal(desc webrtc.SessionDescription) {
	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		p.emitError(fmt.Errorf("set local description: %w", err))
		return
	}

	select {
	case <-gatherComplete:
	case <-p.closed:
		return
	}

	local := p.pc.LocalDescription()
	if local == nil {
		p.emitError(errors.New("local description missing after gathering"))
		return
	}
	raw, err := json.Marshal(local)
	if err != nil {
		p.emitError(fmt.Errorf("encode descriptor: %w", err))
		return
	}
	p.emitSignal(string(raw))
}

// Signal applies the counterpart's descriptor. Once a remote description
// is recorded further calls do nothing.
func (p *Peer) Signal(descriptor string) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(descriptor), &desc); err != nil {
		return fmt.Errorf("%w: decode: %w", call.ErrBadDescriptor, err)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: no sdp", call.ErrBadDescriptor)
	}
	switch {
	case desc.Type == webrtc.SDPTypeOffer && !p.initiator:
	case desc.Type == webrtc.SDPTypeAnswer && p.initiator:
	default:
		return fmt.Errorf("%w: %w: %s", call.ErrBadDescriptor, ErrUnexpectedType, desc.Type)
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrDestroyed
	}
	if p.remoteSet {
		p.mu.Unlock()
		return nil
	}
	p.remoteSet = true
	p.mu.Unlock()

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		p.mu.Lock()
		p.remoteSet = false
		p.mu.Unlock()
		return fmt.Errorf("set remote description: %w", err)
	}

	if desc.Type == webrtc.SDPTypeOffer {
		go p.answer()
	}
	return nil
}

func (p *Peer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteSet
}

// ReplaceVideoTrack swaps what the video sender transmits
func (p *Peer) ReplaceVideoTrack(track *media.Track) error {
	p.mu.Lock()
	sender := p.videoSender
	destroyed := p.destroyed
	p.mu.Unlock()

	if destroyed {
		return ErrDestroyed
	}
	if sender == nil {
		return ErrNoVideoSender
	}
	if err := sender.ReplaceTrack(track.Local()); err != nil {
		return fmt.Errorf("replace video track: %w", err)
	}
	return nil
}

// Destroy closes the connection. It is safe to call more than once.
func (p *Peer) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	close(p.closed)
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

func (p *Peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := media.KindVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = media.KindAudio
	}
	p.log.Debug("Remote track received",
		zap.String("track_id", track.ID()),
		zap.String("codec", track.Codec().MimeType))

	p.mu.Lock()
	emit := !p.destroyed && !p.streamEmitted
	p.streamEmitted = true
	p.mu.Unlock()

	if emit && p.events.OnStream != nil {
		p.events.OnStream(media.RemoteStream{
			ID:     track.StreamID(),
			Tracks: []media.RemoteTrack{{ID: track.ID(), Kind: kind}},
		})
	}

	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) handleState(state webrtc.PeerConnectionState) {
	p.log.Debug("Peer connection state changed", zap.String("state", state.String()))
	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.mu.Lock()
		first := !p.connected
		p.connected = true
		p.mu.Unlock()
		if first {
			p.emit(p.events.OnConnect)
		}
	case webrtc.PeerConnectionStateFailed:
		p.emitError(errors.New("ICE connection failed"))
	case webrtc.PeerConnectionStateClosed:
		p.emitClose()
	}
}

func (p *Peer) alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.destroyed
}

func (p *Peer) emit(fn func()) {
	if fn != nil && p.alive() {
		fn()
	}
}

func (p *Peer) emitSignal(descriptor string) {
	if p.events.OnSignal != nil && p.alive() {
		p.events.OnSignal(descriptor)
	}
}

func (p *Peer) emitError(err error) {
	p.log.Warn("Peer connection error", zap.Error(err))
	if p.events.OnError != nil && p.alive() {
		p.events.OnError(err)
	}
}

func (p *Peer) emitClose() {
	p.emit(p.events.OnClose)
}
