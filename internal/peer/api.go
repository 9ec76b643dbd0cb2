package peer

import (
	"log/slog"
	"time"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/logging"
	"github.com/atharve16/MediMate/internal/netutil"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// ICE timeouts. A relay path can stall for several seconds during failover,
// so disconnected is declared late.
const (
	iceDisconnectedTimeout = 30 * time.Second
	iceFailedTimeout       = 120 * time.Second
	iceKeepaliveInterval   = 2 * time.Second
)

// CodecRegistrar registers the codecs local capture can produce.
// media.Provider implements it.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// API creates transports sharing one media engine and setting engine.
type API struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewAPI builds the pion API for cfg. codecs may be nil, in which case the
// pion default codecs are used.
func NewAPI(cfg *config.Config, codecs CodecRegistrar, logger *slog.Logger) (*API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if codecs != nil {
		if err := codecs.RegisterCodecs(mediaEngine); err != nil {
			return nil, negotiationError("register codecs", false, err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, negotiationError("register codecs", false, err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, negotiationError("register interceptors", false, err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)
	se.LoggerFactory = logging.PionFactory{Logger: logger}

	return &API{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		config: Configuration(cfg),
	}, nil
}

// NewTransport creates a fresh peer connection.
func (a *API) NewTransport() (Transport, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, negotiationError("create peer connection", false, err)
	}
	return pc, nil
}

// Configuration builds ICE servers and relay policy from cfg.
func Configuration(cfg *config.Config) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || netutil.ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}
