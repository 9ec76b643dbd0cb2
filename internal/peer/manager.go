// Package peer owns the media transport of one call.
//
// A Manager holds at most one Transport at a time. It attaches local tracks,
// runs the offer/answer exchanges (the initial call pair and the separate
// renegotiation pair) and trickles ICE candidates in both directions.
//
// Candidates received before a remote description is set are held and
// applied in receipt order, exactly once, right after the description is
// applied. Local candidates gathered before the remote id is known are held
// and sent in order once it is.
package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/atharve16/MediMate/internal/observe"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Transport is the part of *webrtc.PeerConnection the Manager drives.
type Transport interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	CreateDataChannel(label string, options *webrtc.DataChannelInit) (*webrtc.DataChannel, error)
	WriteRTCP(pkts []rtcp.Packet) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// Signaler carries directed messages to the remote participant.
// signaling.Channel implements it.
type Signaler interface {
	Send(msg *signaling.Message) error
}

// Events reports transport activity. Every callback carries the generation
// of the transport it came from so the receiver can discard stale ones.
type Events struct {
	ConnectionState func(gen uint64, state webrtc.PeerConnectionState)
	RemoteTrack     func(gen uint64, track *webrtc.TrackRemote)
	RemoteMedia     func(gen uint64, state MediaState)
}

// Option configures a Manager.
type Option func(*Manager)

func WithEvents(e Events) Option {
	return func(m *Manager) { m.events = e }
}

func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager owns one call's transport. Negotiation methods must be called
// from a single goroutine; transport callbacks may run concurrently.
type Manager struct {
	newTransport func() (Transport, error)
	signaler     Signaler
	events       Events
	metrics      *observe.Metrics
	logger       *slog.Logger

	// sendMu orders outgoing candidates so a flush cannot be overtaken.
	sendMu sync.Mutex

	mu            sync.Mutex
	pc            Transport
	gen           uint64
	remoteID      string
	remoteSet     bool
	remotePending []webrtc.ICECandidateInit
	localPending  []webrtc.ICECandidateInit
	offering      bool
	senders       map[webrtc.RTPCodecType]*webrtc.RTPSender
	tracks        map[webrtc.RTPCodecType]webrtc.TrackLocal
	control       *webrtc.DataChannel
}

// NewManager creates a Manager without a transport. Candidates that arrive
// before Open are held for the transport Open creates.
func NewManager(newTransport func() (Transport, error), sig Signaler, opts ...Option) *Manager {
	m := &Manager{
		newTransport: newTransport,
		signaler:     sig,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	m.logger = m.logger.With("component", "peer")
	return m
}

// Open replaces any current transport with a new one and returns its
// generation. Inbound candidates already held are kept for it.
func (m *Manager) Open() (uint64, error) {
	pc, err := m.newTransport()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	old := m.pc
	m.gen++
	gen := m.gen
	m.pc = pc
	m.remoteSet = false
	m.offering = false
	m.senders = make(map[webrtc.RTPCodecType]*webrtc.RTPSender)
	m.tracks = make(map[webrtc.RTPCodecType]webrtc.TrackLocal)
	m.control = nil
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing previous transport", "error", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		m.localCandidate(gen, c.ToJSON())
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if !m.current(gen) {
			return
		}
		m.logger.Info("connection state", "state", s.String(), "generation", gen)
		if m.events.ConnectionState != nil {
			m.events.ConnectionState(gen, s)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if !m.current(gen) {
			return
		}
		m.logger.Info("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			m.requestKeyframe(pc, track)
		}
		if m.events.RemoteTrack != nil {
			m.events.RemoteTrack(gen, track)
		}
		go drain(track)
	})

	dc, err := openControl(pc)
	if err != nil {
		m.logger.Warn("control channel unavailable", "error", err)
	} else {
		m.mu.Lock()
		m.control = dc
		m.mu.Unlock()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			m.controlMessage(gen, msg.Data)
		})
	}

	m.logger.Debug("transport opened", "generation", gen)
	return gen, nil
}

// Generation returns the current transport generation. It changes on every
// Open and Close.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pc != nil && m.gen == gen
}

// HasTransport reports whether a transport is open.
func (m *Manager) HasTransport() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pc != nil
}

// SetRemote records the remote participant and sends any local candidates
// gathered so far, in order.
func (m *Manager) SetRemote(id string) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	m.remoteID = id
	pending := m.localPending
	m.localPending = nil
	m.mu.Unlock()

	if id == "" {
		return
	}
	for _, c := range pending {
		m.sendCandidate(id, c)
	}
	if len(pending) > 0 {
		m.logger.Debug("flushed local candidates", "count", len(pending), "to", id)
	}
}

// Remote returns the remote participant id, or "".
func (m *Manager) Remote() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}

// Pending returns how many inbound and outbound candidates are held.
func (m *Manager) Pending() (inbound, outbound int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.remotePending), len(m.localPending)
}

func (m *Manager) localCandidate(gen uint64, c webrtc.ICECandidateInit) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if m.pc == nil || m.gen != gen {
		m.mu.Unlock()
		return
	}
	remote := m.remoteID
	if remote == "" {
		m.localPending = append(m.localPending, c)
		m.mu.Unlock()
		m.metrics.RecordBufferedCandidate(context.Background(), "outbound")
		return
	}
	m.mu.Unlock()

	m.sendCandidate(remote, c)
}

func (m *Manager) sendCandidate(to string, c webrtc.ICECandidateInit) {
	msg, err := signaling.NewMessage(signaling.MessageTypeIceCandidate, to, c)
	if err != nil {
		m.logger.Warn("encode candidate", "error", err)
		return
	}
	if err := m.signaler.Send(msg); err != nil {
		m.logger.Debug("candidate not sent", "error", err)
	}
}

// AddRemoteCandidate applies c, or holds it until a remote description is
// set on the current transport.
func (m *Manager) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	pc := m.pc
	if pc == nil || !m.remoteSet {
		m.remotePending = append(m.remotePending, c)
		m.mu.Unlock()
		m.metrics.RecordBufferedCandidate(context.Background(), "inbound")
		return nil
	}
	m.mu.Unlock()

	if err := pc.AddICECandidate(c); err != nil {
		return negotiationError("add ICE candidate", false, err)
	}
	return nil
}

// AttachTracks adds local tracks to the transport. Kinds without a local
// track get a receive-only transceiver so remote media is still negotiated.
func (m *Manager) AttachTracks(tracks []webrtc.TrackLocal) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}

	for _, t := range tracks {
		if err := m.addTrack(pc, t); err != nil {
			return err
		}
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		m.mu.Lock()
		_, sending := m.senders[kind]
		m.mu.Unlock()
		if sending {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return negotiationError("add "+kind.String()+" transceiver", false, err)
		}
	}
	return nil
}

// AddTrack adds one more local track mid-call. Call Renegotiate afterwards.
func (m *Manager) AddTrack(t webrtc.TrackLocal) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	return m.addTrack(pc, t)
}

func (m *Manager) addTrack(pc Transport, t webrtc.TrackLocal) error {
	sender, err := pc.AddTrack(t)
	if err != nil {
		return negotiationError("add "+t.Kind().String()+" track", false, err)
	}
	m.mu.Lock()
	m.senders[t.Kind()] = sender
	m.tracks[t.Kind()] = t
	m.mu.Unlock()
	if sender != nil {
		go readRTCP(sender)
	}
	return nil
}

// Sending reports whether a local track of kind is attached.
func (m *Manager) Sending(kind webrtc.RTPCodecType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracks[kind]
	return ok
}

func (m *Manager) transport() (Transport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return nil, ErrNoTransport
	}
	return m.pc, nil
}

// Offer starts the initial exchange and sends a CallOffer.
func (m *Manager) Offer() error {
	return m.offer(signaling.MessageTypeCallOffer, false)
}

// Renegotiate sends a RenegotiationOffer for the current transport.
func (m *Manager) Renegotiate() error {
	return m.offer(signaling.MessageTypeRenegotiationOffer, true)
}

func (m *Manager) offer(msgType string, reneg bool) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	remote := m.Remote()
	if remote == "" {
		return ErrNoRemote
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return negotiationError("create offer", reneg, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return negotiationError("set local description", reneg, err)
	}
	if reneg {
		m.setOffering(true)
	}
	return m.sendDescription(msgType, remote, pc, reneg)
}

func (m *Manager) setOffering(v bool) {
	m.mu.Lock()
	m.offering = v
	m.mu.Unlock()
}

// Offering reports whether a renegotiation offer of ours is still waiting
// for its answer.
func (m *Manager) Offering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offering
}

// Answer applies a CallOffer and sends the CallAnswer.
func (m *Manager) Answer(offer webrtc.SessionDescription) error {
	return m.answer(offer, signaling.MessageTypeCallAnswer, false)
}

// HandleRenegotiationOffer applies a RenegotiationOffer and replies with a
// RenegotiationAnswer. A renegotiation offer of ours still in flight is
// rolled back first; the caller decides beforehand whether to yield.
func (m *Manager) HandleRenegotiationOffer(offer webrtc.SessionDescription) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	if m.Offering() {
		m.logger.Info("rolling back our renegotiation offer")
		if err := pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return negotiationError("roll back local offer", true, err)
		}
		m.setOffering(false)
	}
	return m.answer(offer, signaling.MessageTypeRenegotiationAnswer, true)
}

func (m *Manager) answer(offer webrtc.SessionDescription, msgType string, reneg bool) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	remote := m.Remote()
	if remote == "" {
		return ErrNoRemote
	}

	if err := m.applyRemote(pc, offer, reneg); err != nil {
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.rollback(pc, reneg, false)
		return negotiationError("create answer", reneg, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		m.rollback(pc, reneg, false)
		return negotiationError("set local description", reneg, err)
	}
	return m.sendDescription(msgType, remote, pc, reneg)
}

// ApplyAnswer applies the CallAnswer to our offer.
func (m *Manager) ApplyAnswer(answer webrtc.SessionDescription) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	return m.applyRemote(pc, answer, false)
}

// HandleRenegotiationAnswer completes a renegotiation we started. On failure
// the local offer is rolled back and the call keeps its previous session.
func (m *Manager) HandleRenegotiationAnswer(answer webrtc.SessionDescription) error {
	pc, err := m.transport()
	if err != nil {
		return err
	}
	if !m.Offering() {
		return negotiationError("apply answer", true, errors.New("no renegotiation offer pending"))
	}
	m.setOffering(false)
	if err := m.applyRemote(pc, answer, true); err != nil {
		m.rollback(pc, true, true)
		return err
	}
	return nil
}

// applyRemote sets desc and then applies held candidates in receipt order.
func (m *Manager) applyRemote(pc Transport, desc webrtc.SessionDescription, reneg bool) error {
	if err := pc.SetRemoteDescription(desc); err != nil {
		return negotiationError("set remote description", reneg, err)
	}

	m.mu.Lock()
	if m.pc != pc {
		m.mu.Unlock()
		return ErrNoTransport
	}
	m.remoteSet = true
	pending := m.remotePending
	m.remotePending = nil
	m.mu.Unlock()

	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			m.logger.Warn("held candidate rejected", "error", err)
		}
	}
	if len(pending) > 0 {
		m.logger.Debug("applied held candidates", "count", len(pending))
	}
	return nil
}

// rollback returns a renegotiation to the stable state. A pending local
// offer is rolled back locally, a pending remote offer remotely.
func (m *Manager) rollback(pc Transport, reneg, localOffer bool) {
	if !reneg {
		return
	}
	rb := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
	var err error
	if localOffer {
		err = pc.SetLocalDescription(rb)
	} else {
		err = pc.SetRemoteDescription(rb)
	}
	if err != nil {
		m.logger.Debug("rollback failed", "error", err)
	}
}

func (m *Manager) sendDescription(msgType, to string, pc Transport, reneg bool) error {
	desc := pc.LocalDescription()
	if desc == nil {
		return negotiationError("local description", reneg, errors.New("not set"))
	}
	msg, err := signaling.NewMessage(msgType, to, desc)
	if err != nil {
		return err
	}
	return m.signaler.Send(msg)
}

// SetSending pauses or resumes a local kind by swapping the sender's track,
// then tells the remote side over the control channel.
func (m *Manager) SetSending(kind webrtc.RTPCodecType, enabled bool) error {
	m.mu.Lock()
	sender, ok := m.senders[kind]
	track := m.tracks[kind]
	m.mu.Unlock()
	if !ok || sender == nil {
		return nil
	}

	if !enabled {
		track = nil
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return negotiationError("replace "+kind.String()+" track", false, err)
	}
	return nil
}

// SendMediaState publishes the local mute state.
func (m *Manager) SendMediaState(s MediaState) error {
	m.mu.Lock()
	dc := m.control
	m.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNoControl
	}
	b, err := newControlMessage(ControlMediaState, s)
	if err != nil {
		return err
	}
	return dc.Send(b)
}

func (m *Manager) controlMessage(gen uint64, data []byte) {
	if !m.current(gen) {
		return
	}
	var msg ControlMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("bad control message", "error", err)
		return
	}
	switch msg.Type {
	case ControlMediaState:
		var s MediaState
		if err := msg.DecodePayload(&s); err != nil {
			m.logger.Warn("bad media state", "error", err)
			return
		}
		if m.events.RemoteMedia != nil {
			m.events.RemoteMedia(gen, s)
		}
	default:
		m.logger.Debug("unknown control message", "type", msg.Type)
	}
}

func (m *Manager) requestKeyframe(pc Transport, track *webrtc.TrackRemote) {
	err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
	if err != nil {
		m.logger.Debug("keyframe request failed", "error", err)
	}
}

// Close tears down the transport and forgets the remote peer and every held
// candidate. It is safe to call without a transport.
func (m *Manager) Close() error {
	m.sendMu.Lock()
	m.mu.Lock()
	pc := m.pc
	m.pc = nil
	m.gen++
	m.remoteID = ""
	m.remoteSet = false
	m.offering = false
	m.remotePending = nil
	m.localPending = nil
	m.senders = nil
	m.tracks = nil
	m.control = nil
	m.mu.Unlock()
	m.sendMu.Unlock()

	if pc == nil {
		return nil
	}
	m.logger.Debug("transport closed")
	return pc.Close()
}

// DecodeDescription reads a session description payload.
func DecodeDescription(msg *signaling.Message) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := msg.Decode(&desc); err != nil {
		return desc, err
	}
	return desc, nil
}

// DecodeCandidate reads an ICE candidate payload.
func DecodeCandidate(msg *signaling.Message) (webrtc.ICECandidateInit, error) {
	var c webrtc.ICECandidateInit
	err := msg.Decode(&c)
	return c, err
}

// readRTCP lets interceptors see sender reports until the sender stops.
func readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// drain consumes remote RTP so the receive buffers never fill.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
