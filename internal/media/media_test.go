package media

import (
	"context"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestAcquireIsIdempotent(t *testing.T) {
	p := &Synthetic{}
	a := NewAcquirer(p, nil)
	ctx := context.Background()

	first, err := a.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second Acquire returned a different stream")
	}
	if p.Opens() != 1 {
		t.Errorf("provider opened %d times, want 1", p.Opens())
	}
	if !first.HasVideo() || !first.HasAudio() {
		t.Error("expected video and audio")
	}
}

func TestAcquireAfterReleaseOpensAgain(t *testing.T) {
	p := &Synthetic{}
	a := NewAcquirer(p, nil)
	ctx := context.Background()

	first, _ := a.Acquire(ctx)
	a.Release()
	if !first.Stopped() || first.Active() {
		t.Error("released stream still active")
	}
	if a.Current() != nil {
		t.Error("Current should be nil after Release")
	}

	second, err := a.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Error("expected a fresh stream after Release")
	}
	if p.Opens() != 2 {
		t.Errorf("opens = %d, want 2", p.Opens())
	}
}

func TestAcquireFallsBackToAudio(t *testing.T) {
	a := NewAcquirer(&Synthetic{DenyVideo: true}, nil)

	s, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.HasVideo() {
		t.Error("video track present although camera was denied")
	}
	if !s.HasAudio() {
		t.Error("expected an audio track")
	}
}

func TestAcquireTotalFailure(t *testing.T) {
	a := NewAcquirer(&Synthetic{DenyVideo: true, DenyAudio: true}, nil)

	s, err := a.Acquire(context.Background())
	if s != nil {
		t.Error("expected no stream")
	}
	var merr *MediaError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MediaError", err)
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("err = %v, want it to wrap ErrPermissionDenied", err)
	}
}

func TestNoneProvider(t *testing.T) {
	_, err := NewAcquirer(None{}, nil).Acquire(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Errorf("err = %v", err)
	}
}

func TestAddVideoToAudioOnlyStream(t *testing.T) {
	p := &Synthetic{DenyVideo: true}
	a := NewAcquirer(p, nil)
	ctx := context.Background()

	s, _ := a.Acquire(ctx)
	if _, _, err := a.AddVideo(ctx); err == nil {
		t.Fatal("AddVideo should fail while the camera is denied")
	}

	p.DenyVideo = false
	got, added, err := a.AddVideo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !added || got != s || !s.HasVideo() {
		t.Errorf("added=%v same=%v video=%v", added, got == s, s.HasVideo())
	}

	_, added, _ = a.AddVideo(ctx)
	if added {
		t.Error("second AddVideo should be a no-op")
	}
}

func TestStreamEnable(t *testing.T) {
	a := NewAcquirer(&Synthetic{DenyVideo: true}, nil)
	s, _ := a.Acquire(context.Background())

	if s.SetEnabled(webrtc.RTPCodecTypeVideo, false) {
		t.Error("SetEnabled reported a video track on an audio-only stream")
	}
	if !s.Enabled(webrtc.RTPCodecTypeAudio) {
		t.Error("audio should start enabled")
	}
	s.SetEnabled(webrtc.RTPCodecTypeAudio, false)
	if s.Enabled(webrtc.RTPCodecTypeAudio) {
		t.Error("audio still enabled after mute")
	}
	a.Release()
}

func TestAcquireHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAcquirer(&Synthetic{}, nil).Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
