package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Track is a local capture track. mediadevices tracks satisfy it directly.
type Track interface {
	webrtc.TrackLocal
	Close() error
}

// endNotifier is implemented by tracks that report device loss.
type endNotifier interface {
	OnEnded(func(error))
}

// Stream is a handle on the local capture. It outlives a single call: the
// Acquirer hands the same Stream to the next call while it is still active.
type Stream struct {
	id string

	mu      sync.Mutex
	tracks  []Track
	muted   map[webrtc.RTPCodecType]bool
	stopped bool
	broken  bool
}

func newStream(tracks []Track) *Stream {
	s := &Stream{
		id:    uuid.NewString(),
		muted: make(map[webrtc.RTPCodecType]bool),
	}
	s.add(tracks)
	return s
}

func (s *Stream) add(tracks []Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, tracks...)
	s.mu.Unlock()

	for _, t := range tracks {
		if n, ok := t.(endNotifier); ok {
			n.OnEnded(func(err error) {
				if err == nil {
					return
				}
				s.mu.Lock()
				s.broken = true
				s.mu.Unlock()
			})
		}
	}
}

// ID identifies the capture in logs.
func (s *Stream) ID() string { return s.id }

// Tracks returns the tracks to attach to a transport.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

// Track returns the first track of kind.
func (s *Stream) Track(kind webrtc.RTPCodecType) (webrtc.TrackLocal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t, true
		}
	}
	return nil, false
}

func (s *Stream) HasVideo() bool {
	_, ok := s.Track(webrtc.RTPCodecTypeVideo)
	return ok
}

func (s *Stream) HasAudio() bool {
	_, ok := s.Track(webrtc.RTPCodecTypeAudio)
	return ok
}

// Active reports whether the capture is running and no track has failed.
func (s *Stream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && !s.broken && len(s.tracks) > 0
}

// SetEnabled mutes or unmutes kind and reports whether the stream has such
// a track. The transport does the actual sending; this only records intent.
func (s *Stream) SetEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	if _, ok := s.Track(kind); !ok {
		return false
	}
	s.mu.Lock()
	s.muted[kind] = !enabled
	s.mu.Unlock()
	return true
}

// Enabled reports whether kind is present and not muted.
func (s *Stream) Enabled(kind webrtc.RTPCodecType) bool {
	if _, ok := s.Track(kind); !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.muted[kind]
}

// Stop closes every track. Safe to call more than once.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	tracks := s.tracks
	s.mu.Unlock()

	var firstErr error
	for _, t := range tracks {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
