package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediconnect-backend/internal/media"
	"mediconnect-backend/pkg/constants"
	"mediconnect-backend/pkg/sanitize"
)

var (
	ErrEmptyMessage   = errors.New("chat message is empty")
	ErrMessageTooLong = errors.New("chat message is too long")
)

// ChatMessage is one entry of the in-call scratchpad. Messages stay on
// this side of the call.
type ChatMessage struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// ToggleAudio flips the microphone's enabled flag and reports whether it
// is now muted. The track keeps flowing so nothing is renegotiated.
func (s *Session) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return s.muted
	}
	s.audio.SetEnabled(!s.audio.Enabled())
	s.muted = !s.audio.Enabled()
	return s.muted
}

// ToggleVideo flips the outgoing video track's enabled flag and reports
// whether video is now off.
func (s *Session) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.video == nil {
		return s.videoOff
	}
	s.video.SetEnabled(!s.video.Enabled())
	s.videoOff = !s.video.Enabled()
	return s.videoOff
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) VideoOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoOff
}

func (s *Session) ToggleFullScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullScreen = !s.fullScreen
	return s.fullScreen
}

func (s *Session) FullScreen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullScreen
}

func (s *Session) ScreenSharing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sharing
}

// ReplaceOutgoingVideoTrack swaps the video the peer sends. The audio
// track is carried into the new local stream untouched.
func (s *Session) ReplaceOutgoingVideoTrack(track *media.Track) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrClosed
	}
	peer := s.peer
	s.mu.Unlock()
	if peer == nil {
		return ErrNotActive
	}

	if err := peer.ReplaceVideoTrack(track); err != nil {
		return fmt.Errorf("replace outgoing video: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tracks := []*media.Track{track}
	if s.audio != nil {
		tracks = append([]*media.Track{s.audio}, track)
	}
	streamID := track.ID()
	if s.local != nil {
		streamID = s.local.ID()
	}
	s.local = media.NewStream(streamID, true, tracks...)
	s.video = track
	return nil
}

// ToggleScreenShare switches the outgoing video between the camera and a
// captured display surface.
func (s *Session) ToggleScreenShare(ctx context.Context) error {
	s.shareMu.Lock()
	defer s.shareMu.Unlock()

	s.mu.Lock()
	active := !s.released && s.peer != nil
	sharing := s.sharing
	s.mu.Unlock()
	if !active {
		return ErrNotActive
	}

	if sharing {
		return s.revertToCameraLocked(ctx)
	}
	return s.shareScreenLocked(ctx)
}

func (s *Session) shareScreenLocked(ctx context.Context) error {
	display, err := s.cfg.Media.GetDisplayMedia(ctx)
	if err != nil {
		return newError(KindMediaAccess, fmt.Sprintf("Could not share screen: %v", err), err)
	}
	if !s.adopt(display.Tracks()...) {
		return ErrClosed
	}
	videos := display.VideoTracks()
	if len(videos) == 0 {
		display.Stop()
		return newError(KindMediaAccess, "Could not share screen: no display track", media.ErrNoDevice)
	}
	screen := videos[0]

	s.mu.Lock()
	camera := s.video
	screen.SetEnabled(!s.videoOff)
	s.mu.Unlock()

	if err := s.ReplaceOutgoingVideoTrack(screen); err != nil {
		screen.Stop()
		return err
	}

	s.mu.Lock()
	s.sharing = true
	s.screen = screen
	s.mu.Unlock()

	if camera != nil {
		camera.Stop()
	}
	s.log.Info("Screen sharing started", zap.String("track_id", screen.ID()))

	screen.OnEnded(func() { s.screenEnded(screen) })
	// the user may have stopped sharing before the handler was registered
	if screen.Stopped() {
		return s.revertToCameraLocked(ctx)
	}
	return nil
}

// screenEnded runs when the display source goes away on its own
func (s *Session) screenEnded(screen *media.Track) {
	s.shareMu.Lock()
	defer s.shareMu.Unlock()

	s.mu.Lock()
	current := s.sharing && s.screen == screen
	s.mu.Unlock()
	if !current {
		return
	}
	if err := s.revertToCameraLocked(s.ctx); err != nil {
		s.log.Warn("Failed to restore camera after screen share", zap.Error(err))
	}
}

func (s *Session) revertToCameraLocked(ctx context.Context) error {
	s.mu.Lock()
	if !s.sharing || s.released {
		s.mu.Unlock()
		return nil
	}
	screen := s.screen
	videoOff := s.videoOff
	s.mu.Unlock()

	stream, err := s.cfg.Media.GetUserMedia(ctx, media.Constraints{Video: true})
	if err != nil {
		return mediaError(err)
	}
	if !s.adopt(stream.Tracks()...) {
		return ErrClosed
	}
	videos := stream.VideoTracks()
	if len(videos) == 0 {
		stream.Stop()
		return mediaError(media.ErrNoDevice)
	}
	camera := videos[0]
	camera.SetEnabled(!videoOff)

	if err := s.ReplaceOutgoingVideoTrack(camera); err != nil {
		camera.Stop()
		return err
	}

	s.mu.Lock()
	s.sharing = false
	s.screen = nil
	s.mu.Unlock()

	if screen != nil {
		screen.Stop()
	}
	s.log.Info("Screen sharing stopped, camera restored")
	return nil
}

// SendChat appends text to the local chat log
func (s *Session) SendChat(text string) (ChatMessage, error) {
	text = sanitize.Text(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	if len(text) > constants.MaxChatMessageLength {
		return ChatMessage{}, ErrMessageTooLong
	}

	msg := ChatMessage{
		Text:      text,
		Sender:    s.cfg.LocalUserID,
		Timestamp: s.now().UTC(),
	}
	s.mu.Lock()
	s.chat = append(s.chat, msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *Session) ChatLog() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.chat))
	copy(out, s.chat)
	return out
}

// tick advances the call timer, but only while connected
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.released && s.status == StatusConnected {
		s.elapsed++
	}
}

// Elapsed is the connected call time
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.elapsed) * constants.TimerTick
}

// FormatElapsed renders d as HH:MM:SS
func FormatElapsed(d time.Duration) string {
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
