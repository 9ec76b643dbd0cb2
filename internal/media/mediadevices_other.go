//go:build !linux

package media

import "log/slog"

// Devices is unavailable off linux: the camera and microphone drivers are
// linux only. Calls run with the None provider.
type Devices = None

func NewDevices(logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("device capture not supported on this platform, running receive-only", "component", "media")
	return None{}, nil
}
