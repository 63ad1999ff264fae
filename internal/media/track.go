// Package media models local capture streams the way a browser exposes
// them: tracks with an enabled flag, an explicit stop, and a natural end
// that fires when the source goes away. Tracks are backed by pion sample
// tracks so a peer connection can send them directly.
package media

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Kind is the media type of a track
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Source is the device a track was captured from
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceCamera     Source = "camera"
	SourceDisplay    Source = "display"
)

// Track is one local capture track
type Track struct {
	id     string
	kind   Kind
	source Source
	local  *webrtc.TrackLocalStaticSample

	mu       sync.Mutex
	enabled  bool
	stopped  bool
	onEnded  []func()
	stopOnce sync.Once
	done     chan struct{}
}

// NewTrack creates an enabled track; video uses VP8 and audio Opus
func NewTrack(kind Kind, source Source, streamID string) (*Track, error) {
	var capability webrtc.RTPCodecCapability
	switch kind {
	case KindAudio:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	case KindVideo:
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}

	id := fmt.Sprintf("%s-%s", source, uuid.New().String())
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s track: %w", kind, err)
	}

	return &Track{
		id:      id,
		kind:    kind,
		source:  source,
		local:   local,
		enabled: true,
		done:    make(chan struct{}),
	}, nil
}

func (t *Track) ID() string {
	return t.id
}

func (t *Track) Kind() Kind {
	return t.kind
}

func (t *Track) Source() Source {
	return t.source
}

// Local returns the pion track to add to a peer connection
func (t *Track) Local() webrtc.TrackLocal {
	return t.local
}

// Enabled reports whether the track carries real media
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled flips the enabled flag. A disabled track keeps sending, with
// silent or blank payloads, so no renegotiation is ever needed.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Stopped reports whether the track was stopped or ended
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Done is closed once the track is stopped or ended
func (t *Track) Done() <-chan struct{} {
	return t.done
}

// Stop releases the track. It does not fire ended handlers, matching
// how a browser treats a track stopped by the page itself.
func (t *Track) Stop() {
	t.finish(false)
}

// End marks the source as gone (for a display track: the user stopped
// sharing from the OS) and fires the ended handlers once.
func (t *Track) End() {
	t.finish(true)
}

func (t *Track) finish(natural bool) {
	var handlers []func()
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		handlers = t.onEnded
		t.onEnded = nil
		t.mu.Unlock()
		close(t.done)
	})
	// handlers run outside the once so they may stop tracks themselves
	if natural {
		for _, fn := range handlers {
			fn()
		}
	}
}

// OnEnded registers fn to run when the track ends naturally
func (t *Track) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.onEnded = append(t.onEnded, fn)
}

// WriteSample sends one media sample. Disabled tracks send a zeroed payload
// of the same size; stopped tracks drop it.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	t.mu.Lock()
	stopped, enabled := t.stopped, t.enabled
	t.mu.Unlock()

	if stopped {
		return nil
	}
	if !enabled {
		s.Data = make([]byte, len(s.Data))
	}
	return t.local.WriteSample(s)
}
