//go:build linux

package media

import (
	"log/slog"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const (
	videoBitRate = 1_000_000
	maxWidth     = 640
	maxHeight    = 480
)

// Devices captures from the local camera and microphone through
// pion/mediadevices (V4L2 and malgo).
type Devices struct {
	selector *mediadevices.CodecSelector
	logger   *slog.Logger
}

// NewDevices builds the VP8/Opus encoder selection and logs what hardware
// is visible.
func NewDevices(logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = videoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	d := &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		logger: logger.With("component", "media", "provider", "mediadevices"),
	}

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		d.logger.Warn("no media devices found")
	}
	for _, dev := range devices {
		d.logger.Debug("media device", "kind", dev.Kind, "label", dev.Label)
	}
	return d, nil
}

func (d *Devices) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.selector.Populate(m)
	return nil
}

func (d *Devices) Open(c Constraints) ([]Track, error) {
	if !c.Video && !c.Audio {
		return nil, ErrNoDevice
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if c.Video {
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			// Raw formats only: MJPEG nodes on some cameras feed the VP8
			// encoder broken frames.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: maxWidth}
			mc.Height = prop.IntRanged{Max: maxHeight}
		}
	}
	if c.Audio {
		constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}

	var tracks []Track
	for _, t := range stream.GetTracks() {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			// Probe the encoder now so a poisoned camera fails here rather
			// than during SetRemoteDescription.
			r, err := t.NewEncodedReader(webrtc.MimeTypeVP8)
			if err != nil {
				for _, all := range stream.GetTracks() {
					all.Close()
				}
				return nil, err
			}
			r.Close()
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}
