package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/logger"
)

// Capture failures, mirroring what a browser reports
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoDevice         = errors.New("requested device not found")
	ErrDeviceBusy       = errors.New("could not start video source")
)

// Constraints selects which kinds of media to capture
type Constraints struct {
	Audio bool
	Video bool
}

// Acquirer obtains local capture streams
type Acquirer interface {
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
	GetDisplayMedia(ctx context.Context) (*Stream, error)
}

// Synthetic is an Acquirer with no hardware behind it. It pumps placeholder
// frames at a fixed interval and can be told to refuse permission, lack a
// device or report a busy device.
type Synthetic struct {
	mu         sync.Mutex
	denied     bool
	busy       bool
	camera     bool
	microphone bool
	display    bool
	interval   time.Duration
	delay      time.Duration
	acquired   []*Track
}

// NewSynthetic creates an acquirer with camera, microphone and display available
func NewSynthetic() *Synthetic {
	return &Synthetic{
		camera:     true,
		microphone: true,
		display:    true,
		interval:   constants.SampleInterval,
	}
}

// Deny makes every following request fail with ErrPermissionDenied
func (s *Synthetic) Deny(denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = denied
}

// SetBusy makes camera requests fail with ErrDeviceBusy
func (s *Synthetic) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
}

// SetDevices configures which sources exist
func (s *Synthetic) SetDevices(camera, microphone, display bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera, s.microphone, s.display = camera, microphone, display
}

// SetSampleInterval sets frame pacing; zero disables the pump
func (s *Synthetic) SetSampleInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = d
}

// SetDelay makes every request wait d before answering
func (s *Synthetic) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Acquired returns every track handed out so far
func (s *Synthetic) Acquired() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, len(s.acquired))
	copy(out, s.acquired)
	return out
}

func (s *Synthetic) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.delay
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// GetUserMedia captures microphone and/or camera
func (s *Synthetic) GetUserMedia(ctx context.Context, c Constraints) (*Stream, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.denied {
		s.mu.Unlock()
		return nil, ErrPermissionDenied
	}
	if (c.Audio && !s.microphone) || (c.Video && !s.camera) || (!c.Audio && !c.Video) {
		s.mu.Unlock()
		return nil, ErrNoDevice
	}
	if c.Video && s.busy {
		s.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	s.mu.Unlock()

	streamID := uuid.New().String()
	stream := NewStream(streamID, true)
	if c.Audio {
		t, err := s.newTrack(KindAudio, SourceMicrophone, streamID)
		if err != nil {
			return nil, err
		}
		stream.AddTrack(t)
	}
	if c.Video {
		t, err := s.newTrack(KindVideo, SourceCamera, streamID)
		if err != nil {
			stream.Stop()
			return nil, err
		}
		stream.AddTrack(t)
	}
	return stream, nil
}

// GetDisplayMedia captures the screen as a single video track
func (s *Synthetic) GetDisplayMedia(ctx context.Context) (*Stream, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	denied, display := s.denied, s.display
	s.mu.Unlock()
	if denied {
		return nil, ErrPermissionDenied
	}
	if !display {
		return nil, ErrNoDevice
	}

	streamID := uuid.New().String()
	t, err := s.newTrack(KindVideo, SourceDisplay, streamID)
	if err != nil {
		return nil, err
	}
	return NewStream(streamID, true, t), nil
}

func (s *Synthetic) newTrack(kind Kind, source Source, streamID string) (*Track, error) {
	t, err := NewTrack(kind, source, streamID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.acquired = append(s.acquired, t)
	interval := s.interval
	s.mu.Unlock()

	if interval > 0 {
		go pump(t, interval)
	}
	return t, nil
}

// placeholder payload sizes: one small VP8 frame, one 20ms Opus packet
const (
	videoFrameBytes = 1200
	audioFrameBytes = 160
)

func pump(t *Track, interval time.Duration) {
	size := audioFrameBytes
	if t.Kind() == KindVideo {
		size = videoFrameBytes
	}
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(i)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			if err := t.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				logger.Debug("Synthetic sample write failed",
					zap.String("track_id", t.ID()),
					zap.Error(err))
			}
		}
	}
}
