package session

import (
	"github.com/atharve16/MediMate/internal/peer"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// fromRemote reports whether msg comes from the peer this session is
// talking to. With no peer yet any sender qualifies.
func (e *Engine) fromRemote(msg *signaling.Message) bool {
	return e.remote.ID == "" || msg.From == e.remote.ID
}

func (e *Engine) onRoomJoined(msg *signaling.Message) {
	if e.state != Discovering {
		return
	}
	var ack signaling.RoomJoinedPayload
	if err := msg.Decode(&ack); err != nil {
		e.logger.Warn("bad room:joined", "error", err)
		return
	}
	e.room = ack.Room
	e.joined = true
	e.logger.Info("joined room", "room", ack.Room)
}

func (e *Engine) onPeerJoined(msg *signaling.Message) {
	if e.state != Discovering {
		return
	}
	var p signaling.PeerPayload
	if err := msg.Decode(&p); err != nil || p.ID == "" {
		e.logger.Warn("bad user:joined", "error", err)
		return
	}
	if e.remote.ID != "" && e.remote.ID != p.ID {
		e.logger.Info("ignoring extra participant", "participant", p.ID, "remote", e.remote.ID)
		return
	}
	e.remote = Peer{ID: p.ID, Email: p.Email, Name: p.Name}
	e.pm.SetRemote(p.ID)
	e.logger.Info("peer discovered", "remote", p.ID, "email", p.Email)
}

func (e *Engine) onPeerLeft(msg *signaling.Message) {
	var p signaling.PeerPayload
	if err := msg.Decode(&p); err != nil || p.ID == "" || p.ID != e.remote.ID {
		return
	}

	switch {
	case e.state == Discovering:
		e.remote = Peer{}
		e.pm.SetRemote("")
		e.logger.Info("peer left room", "remote", p.ID)
	case e.state.inCall():
		e.logger.Info("peer left during call", "remote", p.ID)
		e.teardown()
	}
}

func (e *Engine) onCallOffer(msg *signaling.Message) {
	if !e.fromRemote(msg) {
		e.logger.Info("ignoring offer from a third participant", "from", msg.From)
		return
	}

	switch e.state {
	case Discovering:
		offer, err := peer.DecodeDescription(msg)
		if err != nil {
			e.logger.Warn("bad offer", "from", msg.From, "error", err)
			return
		}
		if e.remote.ID == "" {
			e.remote = Peer{ID: msg.From}
			e.pm.SetRemote(msg.From)
		}
		e.offer = &offer
		e.setState(Ringing)

	case Calling:
		// Both sides offered. The smaller id keeps its offer; the larger one
		// drops its own and answers, since it wanted the call anyway.
		if e.ch.ID() < msg.From {
			e.logger.Info("offer collision, keeping ours", "remote", msg.From)
			return
		}
		offer, err := peer.DecodeDescription(msg)
		if err != nil {
			e.logger.Warn("bad offer", "from", msg.From, "error", err)
			return
		}
		e.logger.Info("offer collision, answering theirs", "remote", msg.From)
		if err := e.openTransport(e.ctx); err != nil {
			e.abortCall("open transport", err)
			return
		}
		if err := e.pm.Answer(offer); err != nil {
			e.abortCall("answer", err)
			return
		}
		e.connected()
	}
}

func (e *Engine) onCallAnswer(msg *signaling.Message) {
	if e.state != Calling || msg.From != e.remote.ID {
		return
	}
	answer, err := peer.DecodeDescription(msg)
	if err != nil {
		e.abortCall("decode answer", err)
		return
	}
	if err := e.pm.ApplyAnswer(answer); err != nil {
		e.abortCall("apply answer", err)
		return
	}
	e.connected()
}

// connected completes an initial negotiation and runs a renegotiation
// requested while it was in flight.
func (e *Engine) connected() {
	e.setState(Connected)
	if e.pendingVideo {
		e.pendingVideo = false
		if err := e.addVideo(e.ctx); err != nil {
			e.logger.Warn("deferred video add failed", "error", err)
		}
	}
}

func (e *Engine) onCallDeclined(msg *signaling.Message) {
	if e.state != Calling || msg.From != e.remote.ID {
		return
	}
	e.logger.Info("call declined", "remote", msg.From)
	e.lastErr = "call declined"
	e.closeTransport()
	e.setState(Discovering)
}

func (e *Engine) onIceCandidate(msg *signaling.Message) {
	if e.state == Idle || e.pm == nil || !e.fromRemote(msg) {
		return
	}
	c, err := peer.DecodeCandidate(msg)
	if err != nil {
		e.logger.Warn("bad candidate", "from", msg.From, "error", err)
		return
	}
	if err := e.pm.AddRemoteCandidate(c); err != nil {
		e.logger.Warn("candidate rejected", "error", err)
	}
}

func (e *Engine) onRenegotiationOffer(msg *signaling.Message) {
	if e.state != Connected || msg.From != e.remote.ID {
		return
	}
	offer, err := peer.DecodeDescription(msg)
	if err != nil {
		e.renegotiationFailed(err)
		return
	}

	// Both sides renegotiated at once. Same rule as for call offers: the
	// smaller id keeps its offer, the larger one rolls back, answers and
	// then offers its own change again.
	collided := e.pm.Offering()
	if collided && e.ch.ID() < msg.From {
		e.logger.Info("renegotiation collision, keeping ours", "remote", msg.From)
		return
	}
	if err := e.pm.HandleRenegotiationOffer(offer); err != nil {
		e.renegotiationFailed(err)
		return
	}
	if collided {
		e.logger.Info("renegotiation collision, offering again", "remote", msg.From)
		if err := e.pm.Renegotiate(); err != nil {
			e.renegotiationFailed(err)
		}
	}
}

func (e *Engine) onRenegotiationAnswer(msg *signaling.Message) {
	if e.state != Connected || msg.From != e.remote.ID || !e.pm.Offering() {
		return
	}
	answer, err := peer.DecodeDescription(msg)
	if err == nil {
		err = e.pm.HandleRenegotiationAnswer(answer)
	}
	if err != nil {
		e.renegotiationFailed(err)
	}
}

// renegotiationFailed leaves the call on its last good description.
func (e *Engine) renegotiationFailed(err error) {
	e.logger.Warn("renegotiation failed, keeping current session", "error", err)
	e.metrics.RecordNegotiationFailure(e.ctx, "renegotiation")
	e.lastErr = err.Error()
}

// onCallEnded ends the session from any state but Idle once the known
// peer hangs up.
func (e *Engine) onCallEnded(msg *signaling.Message) {
	if e.state == Idle || e.remote.ID == "" || msg.From != e.remote.ID {
		return
	}
	e.logger.Info("call ended by peer", "remote", msg.From, "state", e.state.String())
	e.teardown()
}

func (e *Engine) onServiceError(msg *signaling.Message) {
	var p signaling.ErrorPayload
	if err := msg.Decode(&p); err != nil || p.Error == "" {
		e.logger.Warn("malformed service error", "error", err)
		p.Error = "service error"
	}
	e.logger.Warn("service error", "error", p.Error)
	e.lastErr = p.Error

	// A refused join leaves us outside any room.
	if e.state == Discovering && !e.joined {
		e.teardown()
	}
}

func (e *Engine) onTransportState(ev transportState) {
	if ev.gen != e.gen || e.pm == nil {
		return
	}
	e.transport = ev.state.String()

	switch ev.state {
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
		if e.state.inCall() {
			e.logger.Warn("connectivity lost", "state", ev.state.String())
			e.lastErr = "connection " + ev.state.String()
			e.teardown()
		}
	}
}
