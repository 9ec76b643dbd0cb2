package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultDomain       = "localhost:8080"
	DefaultListenAddr   = ":8080"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultRoomCapacity = 2
	DefaultMediaMode    = MediaDevices
	DefaultLogFormat    = "text"
)

// Media modes select the local capture provider.
const (
	MediaDevices   = "devices"
	MediaSynthetic = "synthetic"
	MediaNone      = "none"
)

// Config holds application configuration
type Config struct {
	// Domain is the rendezvous service host[:port].
	Domain string

	// WebSocketURL is derived from Domain unless given explicitly.
	WebSocketURL string

	// ListenAddr is where `serve` binds.
	ListenAddr string

	// RoomCapacity caps room occupancy on the rendezvous service. 0 = unlimited.
	RoomCapacity int

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// Identity announced on register and join.
	Email string
	Name  string

	MediaMode string

	LogLevel  string
	LogFormat string
}

// Options for loading config with CLI flag overrides. Zero values mean
// "not set on the command line".
type Options struct {
	ConfigFile   string
	Domain       string
	ServerURL    string
	ListenAddr   string
	RoomCapacity *int
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	Email        string
	Name         string
	MediaMode    string
	LogLevel     string
	LogFormat    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML config file (Options.ConfigFile or MEDIMATE_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	var file File
	path := first(opts.ConfigFile, os.Getenv("MEDIMATE_CONFIG"))
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		file = *f
	}

	cfg := &Config{
		Domain:     first(opts.Domain, os.Getenv("DOMAIN"), file.Signaling.Domain, DefaultDomain),
		ListenAddr: first(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), file.Server.Listen, DefaultListenAddr),
		TURNServer: first(opts.TURNServer, os.Getenv("TURN_SERVER"), file.ICE.TURN),
		TURNUser:   first(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.ICE.TURNUser),
		TURNPass:   first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.ICE.TURNPass),
		Email:      first(opts.Email, os.Getenv("MEDIMATE_EMAIL"), file.Identity.Email),
		Name:       first(opts.Name, os.Getenv("MEDIMATE_NAME"), file.Identity.Name),
		MediaMode:  first(opts.MediaMode, os.Getenv("MEDIMATE_MEDIA"), file.Media.Mode, DefaultMediaMode),
		LogLevel:   first(opts.LogLevel, os.Getenv("LOG_LEVEL"), file.Log.Level),
		LogFormat:  first(opts.LogFormat, os.Getenv("LOG_FORMAT"), file.Log.Format, DefaultLogFormat),
	}

	cfg.WebSocketURL = first(opts.ServerURL, os.Getenv("SIGNALING_URL"), file.Signaling.URL, websocketURL(cfg.Domain))

	switch {
	case opts.STUNServer != "":
		cfg.STUNServers = []string{opts.STUNServer}
	case os.Getenv("STUN_SERVER") != "":
		cfg.STUNServers = strings.Split(os.Getenv("STUN_SERVER"), ",")
	case len(file.ICE.STUN) > 0:
		cfg.STUNServers = file.ICE.STUN
	default:
		cfg.STUNServers = []string{DefaultSTUN}
	}

	cfg.ForceRelay = opts.ForceRelay || envBool("FORCE_RELAY") || file.ICE.ForceRelay

	cfg.RoomCapacity = DefaultRoomCapacity
	if file.Server.RoomCapacity != nil {
		cfg.RoomCapacity = *file.Server.RoomCapacity
	}
	if v := os.Getenv("ROOM_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: ROOM_CAPACITY %q: %w", v, err)
		}
		cfg.RoomCapacity = n
	}
	if opts.RoomCapacity != nil {
		cfg.RoomCapacity = *opts.RoomCapacity
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.RoomCapacity < 0 {
		errs = append(errs, fmt.Errorf("room capacity %d must be >= 0", c.RoomCapacity))
	}
	switch c.MediaMode {
	case MediaDevices, MediaSynthetic, MediaNone:
	default:
		errs = append(errs, fmt.Errorf("media mode %q is invalid; valid values: devices, synthetic, none", c.MediaMode))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q is invalid; valid values: text, json", c.LogFormat))
	}
	if c.ForceRelay && c.TURNServer == "" {
		errs = append(errs, errors.New("cannot force relay mode without TURN server configured"))
	}
	if !strings.HasPrefix(c.WebSocketURL, "ws://") && !strings.HasPrefix(c.WebSocketURL, "wss://") {
		errs = append(errs, fmt.Errorf("signaling url %q must use ws:// or wss://", c.WebSocketURL))
	}
	return errors.Join(errs...)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// HTTPBaseURL is the rendezvous service's plain HTTP origin, used for the
// rooms API.
func (c *Config) HTTPBaseURL() string {
	u := strings.TrimSuffix(c.WebSocketURL, "/ws")
	u = strings.Replace(u, "wss://", "https://", 1)
	return strings.Replace(u, "ws://", "http://", 1)
}

// websocketURL picks ws:// for loopback hosts and wss:// for everything else.
func websocketURL(domain string) string {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	if host == "localhost" || net.ParseIP(host).IsLoopback() {
		return fmt.Sprintf("ws://%s/ws", domain)
	}
	return fmt.Sprintf("wss://%s/ws", domain)
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
