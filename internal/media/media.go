// Package media acquires the local camera and microphone for a call.
//
// An Acquirer wraps a Provider (the platform capture API) with the capture
// policy: reuse an active stream, otherwise try video and audio together,
// then audio alone. When nothing can be opened the caller gets a
// *MediaError and may carry on without local media.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Constraints selects which kinds to open.
type Constraints struct {
	Video bool
	Audio bool
}

func (c Constraints) String() string {
	switch {
	case c.Video && c.Audio:
		return "video+audio"
	case c.Video:
		return "video-only"
	case c.Audio:
		return "audio-only"
	}
	return "none"
}

// Provider is the platform capture API.
type Provider interface {
	// Open starts capture for the requested kinds. It fails as a unit.
	Open(c Constraints) ([]Track, error)

	// RegisterCodecs adds the codecs the provider's encoders produce.
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// attempts is the degradation order for Acquire.
var attempts = []Constraints{
	{Video: true, Audio: true},
	{Audio: true},
}

// Acquirer owns at most one active Stream.
type Acquirer struct {
	provider Provider
	logger   *slog.Logger

	mu     sync.Mutex
	stream *Stream
}

// NewAcquirer creates an Acquirer over p.
func NewAcquirer(p Provider, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{provider: p, logger: logger.With("component", "media")}
}

// Provider returns the underlying capture provider.
func (a *Acquirer) Provider() Provider { return a.provider }

// Acquire returns the active stream, or opens a new one with fallback.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stream != nil && a.stream.Active() {
		return a.stream, nil
	}
	if a.stream != nil {
		a.stream.Stop()
		a.stream = nil
	}

	var errs []error
	for _, c := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tracks, err := a.provider.Open(c)
		if err != nil {
			a.logger.Warn("capture attempt failed", "constraints", c.String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		a.stream = newStream(tracks)
		a.logger.Info("local media captured", "constraints", c.String(), "tracks", len(tracks), "stream", a.stream.ID())
		return a.stream, nil
	}

	return nil, &MediaError{Op: "acquire", Err: errors.Join(errs...)}
}

// AddVideo makes sure the current stream carries video, opening a camera
// if needed. It reports whether a track was added. With no active stream a
// video-only stream is created.
func (a *Acquirer) AddVideo(ctx context.Context) (*Stream, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if a.stream != nil && a.stream.Active() && a.stream.HasVideo() {
		return a.stream, false, nil
	}

	tracks, err := a.provider.Open(Constraints{Video: true})
	if err != nil {
		return a.stream, false, &MediaError{Op: "add video", Err: err}
	}
	if a.stream != nil && a.stream.Active() {
		a.stream.add(tracks)
	} else {
		a.stream = newStream(tracks)
	}
	a.logger.Info("video added to local media", "stream", a.stream.ID())
	return a.stream, true, nil
}

// Current returns the active stream or nil.
func (a *Acquirer) Current() *Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stream == nil || !a.stream.Active() {
		return nil
	}
	return a.stream
}

// Release stops the current stream, if any.
func (a *Acquirer) Release() {
	a.mu.Lock()
	s := a.stream
	a.stream = nil
	a.mu.Unlock()

	if s == nil {
		return
	}
	if err := s.Stop(); err != nil {
		a.logger.Warn("stopping capture", "stream", s.ID(), "error", err)
		return
	}
	a.logger.Debug("local media released", "stream", s.ID())
}

// None is a Provider with no devices: calls run receive-only.
type None struct{}

func (None) Open(Constraints) ([]Track, error) { return nil, ErrNoDevice }

func (None) RegisterCodecs(m *webrtc.MediaEngine) error { return m.RegisterDefaultCodecs() }
