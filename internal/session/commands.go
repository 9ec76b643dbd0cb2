package session

import (
	"context"
	"errors"

	"github.com/atharve16/MediMate/internal/peer"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Join enters room and starts discovery. An empty room asks the service to
// name one; the chosen name appears in the snapshot once acknowledged.
// Peers are reported asynchronously.
func (e *Engine) Join(ctx context.Context, room string) error {
	return e.exec(ctx, "join", func(context.Context) error {
		if e.state != Idle {
			return &StateError{Op: "join", State: e.state}
		}
		if err := signaling.JoinRoom(e.ch, e.identity, room); err != nil {
			return err
		}
		e.lastErr = ""
		e.room = room
		e.pm = e.newManager()
		e.setState(Discovering)
		return nil
	})
}

// Call offers a call to the discovered peer.
func (e *Engine) Call(ctx context.Context) error {
	return e.exec(ctx, "call", func(ctx context.Context) error {
		if e.state != Discovering {
			return &StateError{Op: "call", State: e.state}
		}
		if e.remote.ID == "" {
			return ErrNoPeer
		}
		if err := e.openTransport(ctx); err != nil {
			e.abortCall("open transport", err)
			return err
		}
		if err := e.pm.Offer(); err != nil {
			e.abortCall("offer", err)
			return err
		}
		e.setState(Calling)
		return nil
	})
}

// Accept answers the ringing call.
func (e *Engine) Accept(ctx context.Context) error {
	return e.exec(ctx, "accept", func(ctx context.Context) error {
		if e.state != Ringing || e.offer == nil {
			return &StateError{Op: "accept", State: e.state}
		}
		offer := *e.offer
		err := e.openTransport(ctx)
		if err == nil {
			err = e.pm.Answer(offer)
		}
		if err != nil {
			// Let the caller stop waiting.
			e.send(signaling.MessageTypeCallDeclined, e.remote.ID, nil)
			e.abortCall("answer", err)
			return err
		}
		e.offer = nil
		e.connected()
		return nil
	})
}

// Decline refuses the ringing call and keeps the peer for later.
func (e *Engine) Decline(ctx context.Context) error {
	return e.exec(ctx, "decline", func(context.Context) error {
		if e.state != Ringing {
			return &StateError{Op: "decline", State: e.state}
		}
		e.send(signaling.MessageTypeCallDeclined, e.remote.ID, nil)
		e.closeTransport()
		e.setState(Discovering)
		return nil
	})
}

// End leaves the room from any state but Idle. It stops capture and closes
// the transport as soon as the loop reaches it; the CallEnded notice to the
// peer is best effort and not acknowledged.
//
// End is queued like every other command, so it runs after a command already
// in progress. A Call or Accept blocked on capture delays it until capture
// returns or that command's context expires.
func (e *Engine) End(ctx context.Context) error {
	return e.exec(ctx, "end", func(context.Context) error {
		if e.state == Idle {
			return &StateError{Op: "end", State: e.state}
		}
		e.end()
		return nil
	})
}

func (e *Engine) end() {
	if e.state.inCall() && e.remote.ID != "" {
		e.send(signaling.MessageTypeCallEnded, e.remote.ID, nil)
	}
	if err := signaling.LeaveRoom(e.ch); err != nil {
		e.logger.Debug("leave not sent", "error", err)
	}
	e.teardown()
}

// AddVideo starts sending camera video mid-call through a renegotiation.
// Issued while our offer is still out, it runs once the call connects.
func (e *Engine) AddVideo(ctx context.Context) error {
	return e.exec(ctx, "add video", func(ctx context.Context) error {
		switch e.state {
		case Calling:
			e.pendingVideo = true
			return nil
		case Connected:
			return e.addVideo(ctx)
		}
		return &StateError{Op: "add video", State: e.state}
	})
}

func (e *Engine) addVideo(ctx context.Context) error {
	stream, added, err := e.acquirer.AddVideo(ctx)
	if err != nil {
		e.lastErr = err.Error()
		return err
	}
	e.stream = stream
	if !added && e.pm.Sending(webrtc.RTPCodecTypeVideo) {
		return nil
	}
	track, ok := stream.Track(webrtc.RTPCodecTypeVideo)
	if !ok {
		return ErrNoMedia
	}
	if err := e.pm.AddTrack(track); err != nil {
		return err
	}
	if err := e.pm.Renegotiate(); err != nil {
		e.renegotiationFailed(err)
		return err
	}
	return nil
}

// ToggleAudio mutes or unmutes the microphone and returns the new state.
func (e *Engine) ToggleAudio(ctx context.Context) (bool, error) {
	return e.toggle(ctx, webrtc.RTPCodecTypeAudio)
}

// ToggleVideo pauses or resumes the camera and returns the new state.
func (e *Engine) ToggleVideo(ctx context.Context) (bool, error) {
	return e.toggle(ctx, webrtc.RTPCodecTypeVideo)
}

func (e *Engine) toggle(ctx context.Context, kind webrtc.RTPCodecType) (bool, error) {
	v, err := e.query(ctx, "toggle "+kind.String(), func(context.Context) (any, error) {
		if e.stream == nil {
			return false, ErrNoMedia
		}
		enabled := !e.stream.Enabled(kind)
		if !e.stream.SetEnabled(kind, enabled) {
			return false, ErrNoMedia
		}
		if e.pm == nil || !e.pm.HasTransport() {
			return enabled, nil
		}
		if err := e.pm.SetSending(kind, enabled); err != nil {
			return enabled, err
		}
		err := e.pm.SendMediaState(peer.MediaState{
			Audio: e.stream.Enabled(webrtc.RTPCodecTypeAudio),
			Video: e.stream.Enabled(webrtc.RTPCodecTypeVideo),
		})
		if err != nil && !errors.Is(err, peer.ErrNoControl) {
			e.logger.Debug("media state not sent", "error", err)
		}
		return enabled, nil
	})
	enabled, _ := v.(bool)
	return enabled, err
}
