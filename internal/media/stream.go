package media

import (
	"sync"
)

// Stream groups the tracks of one capture request
type Stream struct {
	id    string
	local bool

	mu     sync.RWMutex
	tracks []*Track
}

// NewStream creates a stream. Local streams render muted in preview.
func NewStream(id string, local bool, tracks ...*Track) *Stream {
	return &Stream{id: id, local: local, tracks: tracks}
}

func (s *Stream) ID() string {
	return s.id
}

// PreviewMuted is true for local streams so the preview never echoes
func (s *Stream) PreviewMuted() bool {
	return s.local
}

// Tracks returns every track in the stream
func (s *Stream) Tracks() []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) AudioTracks() []*Track {
	return s.byKind(KindAudio)
}

func (s *Stream) VideoTracks() []*Track {
	return s.byKind(KindVideo)
}

func (s *Stream) byKind(k Kind) []*Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Track
	for _, t := range s.tracks {
		if t.kind == k {
			out = append(out, t)
		}
	}
	return out
}

// AddTrack appends t
func (s *Stream) AddTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// RemoveTrack drops t from the stream without stopping it
func (s *Stream) RemoveTrack(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.tracks {
		if cur == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return
		}
	}
}

// Stop stops every track
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// RemoteTrack describes a track received from the counterpart
type RemoteTrack struct {
	ID   string
	Kind Kind
}

// RemoteStream is the counterpart's media as seen by the local peer
type RemoteStream struct {
	ID     string
	Tracks []RemoteTrack
}
