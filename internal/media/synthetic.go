package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const audioFrame = 20 * time.Millisecond

// Synthetic produces sample tracks without touching hardware. Audio tracks
// stream Opus silence; video tracks are negotiated but send no frames.
// DenyVideo and DenyAudio make Open fail as a real device would when
// permission is refused.
type Synthetic struct {
	DenyVideo bool
	DenyAudio bool

	opens atomic.Int32
}

// Opens counts successful Open calls.
func (s *Synthetic) Opens() int { return int(s.opens.Load()) }

func (s *Synthetic) Open(c Constraints) ([]Track, error) {
	if (c.Video && s.DenyVideo) || (c.Audio && s.DenyAudio) {
		return nil, ErrPermissionDenied
	}
	if !c.Video && !c.Audio {
		return nil, ErrNoDevice
	}

	streamID := "synthetic-" + uuid.NewString()[:8]
	var tracks []Track
	if c.Video {
		t, err := newSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", streamID, nil)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Audio {
		t, err := newSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", streamID, opusSilence)
		if err != nil {
			for _, prev := range tracks {
				prev.Close()
			}
			return nil, err
		}
		tracks = append(tracks, t)
	}
	s.opens.Add(1)
	return tracks, nil
}

func (s *Synthetic) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

type sampleTrack struct {
	*webrtc.TrackLocalStaticSample

	stop chan struct{}
	once sync.Once
}

func newSampleTrack(c webrtc.RTPCodecCapability, id, streamID string, frame []byte) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(c, id, streamID)
	if err != nil {
		return nil, err
	}
	t := &sampleTrack{TrackLocalStaticSample: local, stop: make(chan struct{})}
	if frame != nil {
		go t.pace(frame)
	}
	return t, nil
}

// pace writes frame every audioFrame until Close. Writes to an unbound
// track are dropped by pion.
func (t *sampleTrack) pace(frame []byte) {
	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			_ = t.WriteSample(pionmedia.Sample{Data: frame, Duration: audioFrame})
		}
	}
}

func (t *sampleTrack) Close() error {
	t.once.Do(func() { close(t.stop) })
	return nil
}
