// Package session sequences room discovery, local capture and the peer
// transport into one call lifecycle.
//
// An Engine runs a single loop per participant. Signaling messages,
// transport callbacks and caller commands all land in one mailbox and are
// handled one at a time in arrival order; nothing else touches session
// state. Incoming messages are dispatched through an explicit table from
// message type to handler.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/media"
	"github.com/atharve16/MediMate/internal/observe"
	"github.com/atharve16/MediMate/internal/peer"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// Mailbox items besides *signaling.Message.
type (
	command struct {
		op    string
		fn    func() (any, error)
		res   result
		reply chan result
	}
	result struct {
		val any
		err error
	}
	transportState struct {
		gen   uint64
		state webrtc.PeerConnectionState
	}
	remoteTrack struct {
		gen  uint64
		kind webrtc.RTPCodecType
	}
	remoteMedia struct {
		gen   uint64
		state peer.MediaState
	}
	channelClosed struct {
		err error
	}
)

// Option configures an Engine.
type Option func(*Engine)

func WithIdentity(id identity.Identity) Option {
	return func(e *Engine) { e.identity = id }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is one participant's call session.
type Engine struct {
	ch           signaling.Channel
	acquirer     *media.Acquirer
	newTransport func() (peer.Transport, error)
	identity     identity.Identity
	metrics      *observe.Metrics
	logger       *slog.Logger

	mailbox *mailbox
	router  *signaling.Router
	done    chan struct{}

	// Owned by the loop.
	ctx          context.Context
	state        State
	room         string
	joined       bool
	remote       Peer
	offer        *webrtc.SessionDescription
	stream       *media.Stream
	pm           *peer.Manager
	gen          uint64
	pendingVideo bool
	connectedAt  time.Time
	transport    string
	remoteAudio  bool
	remoteVideo  bool
	lastErr      string

	snapMu sync.RWMutex
	snap   Snapshot
	subs   []chan Snapshot
}

// New creates an Engine on an already registered channel. newTransport
// creates peer connections, usually (*peer.API).NewTransport.
func New(ch signaling.Channel, acq *media.Acquirer, newTransport func() (peer.Transport, error), opts ...Option) *Engine {
	e := &Engine{
		ch:           ch,
		acquirer:     acq,
		newTransport: newTransport,
		logger:       slog.Default(),
		mailbox:      newMailbox(),
		done:         make(chan struct{}),
		ctx:          context.Background(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.logger = e.logger.With("component", "session", "id", ch.ID())
	e.router = e.routes()
	e.snap = Snapshot{State: Idle, LocalID: ch.ID()}
	return e
}

func (e *Engine) routes() *signaling.Router {
	return signaling.NewRouter().
		On(signaling.MessageTypeRoomJoined, e.onRoomJoined).
		On(signaling.MessageTypePeerJoined, e.onPeerJoined).
		On(signaling.MessageTypePeerLeft, e.onPeerLeft).
		On(signaling.MessageTypeCallOffer, e.onCallOffer).
		On(signaling.MessageTypeCallAnswer, e.onCallAnswer).
		On(signaling.MessageTypeCallDeclined, e.onCallDeclined).
		On(signaling.MessageTypeIceCandidate, e.onIceCandidate).
		On(signaling.MessageTypeRenegotiationOffer, e.onRenegotiationOffer).
		On(signaling.MessageTypeRenegotiationAnswer, e.onRenegotiationAnswer).
		On(signaling.MessageTypeCallEnded, e.onCallEnded).
		On(signaling.MessageTypeError, e.onServiceError).
		Otherwise(func(msg *signaling.Message) {
			e.logger.Debug("unhandled message", "type", msg.Type, "from", msg.From)
		})
}

// Run processes the mailbox until ctx is cancelled or the signaling channel
// closes. A call in progress is ended on the way out. The returned error is
// the channel failure, if that is what stopped the loop.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	e.ctx = ctx

	go func() {
		for msg := range e.ch.Incoming() {
			e.mailbox.put(msg)
		}
		e.mailbox.put(channelClosed{err: e.ch.Err()})
	}()

	for {
		item, ok := e.mailbox.take(ctx)
		if !ok {
			if e.state != Idle {
				e.end()
			}
			e.publish()
			return nil
		}

		if closed, ok := item.(channelClosed); ok {
			err := closed.err
			if err == nil {
				err = signaling.ErrClosed
			}
			e.logger.Warn("signaling channel lost", "error", err)
			e.fail(err)
			e.publish()
			return &signaling.TransportError{Op: "receive", Err: err}
		}

		e.handle(item)
		e.publish()
		// Reply after publishing so callers observe the new snapshot.
		if c, ok := item.(*command); ok {
			c.reply <- c.res
		}
	}
}

func (e *Engine) handle(item any) {
	switch v := item.(type) {
	case *signaling.Message:
		e.router.Dispatch(v)
	case *command:
		v.res.val, v.res.err = v.fn()
		if v.res.err != nil {
			e.logger.Debug("command failed", "op", v.op, "error", v.res.err)
		}
	case transportState:
		e.onTransportState(v)
	case remoteTrack:
		if v.gen != e.gen || !e.state.inCall() {
			return
		}
		switch v.kind {
		case webrtc.RTPCodecTypeAudio:
			e.remoteAudio = true
		case webrtc.RTPCodecTypeVideo:
			e.remoteVideo = true
		}
	case remoteMedia:
		if v.gen != e.gen || !e.state.inCall() {
			return
		}
		e.remoteAudio, e.remoteVideo = v.state.Audio, v.state.Video
	}
}

// exec runs fn on the loop and waits for its result.
func (e *Engine) exec(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := e.query(ctx, op, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// query runs fn on the loop and returns its value through the reply.
func (e *Engine) query(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	select {
	case <-e.done:
		return nil, ErrStopped
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Blocking work such as capture honours the caller's deadline.
	c := &command{op: op, fn: func() (any, error) { return fn(ctx) }, reply: make(chan result, 1)}
	e.mailbox.put(c)

	select {
	case r := <-c.reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, ErrStopped
	}
}

func (e *Engine) setState(to State) {
	from := e.state
	if from == to {
		return
	}
	if from == Connected && !e.connectedAt.IsZero() {
		e.metrics.CallDuration.Record(e.ctx, time.Since(e.connectedAt).Seconds())
		e.connectedAt = time.Time{}
	}
	if to == Connected {
		e.connectedAt = time.Now()
	}
	e.state = to
	e.metrics.RecordTransition(e.ctx, from.String(), to.String())
	e.logger.Info("state changed", "from", from.String(), "to", to.String(), "room", e.room, "remote", e.remote.ID)
}

// newManager creates the peer manager for a joined room. Its callbacks only
// post to the mailbox.
func (e *Engine) newManager() *peer.Manager {
	return peer.NewManager(e.newTransport, e.ch,
		peer.WithMetrics(e.metrics),
		peer.WithLogger(e.logger),
		peer.WithEvents(peer.Events{
			ConnectionState: func(gen uint64, s webrtc.PeerConnectionState) {
				e.mailbox.put(transportState{gen: gen, state: s})
			},
			RemoteTrack: func(gen uint64, t *webrtc.TrackRemote) {
				e.mailbox.put(remoteTrack{gen: gen, kind: t.Kind()})
			},
			RemoteMedia: func(gen uint64, s peer.MediaState) {
				e.mailbox.put(remoteMedia{gen: gen, state: s})
			},
		}),
	)
}

// openTransport acquires capture and opens a fresh transport with the local
// tracks attached. A capture failure is not fatal: the call goes ahead
// without local media.
func (e *Engine) openTransport(ctx context.Context) error {
	stream, err := e.acquirer.Acquire(ctx)
	var merr *media.MediaError
	switch {
	case errors.As(err, &merr):
		e.logger.Warn("continuing without local media", "error", err)
		e.lastErr = err.Error()
	case err != nil:
		return err
	}
	e.stream = stream

	gen, err := e.pm.Open()
	if err != nil {
		return err
	}
	e.gen = gen
	e.transport = webrtc.PeerConnectionStateNew.String()

	var tracks []webrtc.TrackLocal
	if stream != nil {
		tracks = stream.Tracks()
	}
	return e.pm.AttachTracks(tracks)
}

// abortCall drops a failed initial negotiation. The peer stays known and
// the session returns to Discovering.
func (e *Engine) abortCall(op string, err error) {
	e.logger.Warn("negotiation failed", "op", op, "error", err)
	e.metrics.RecordNegotiationFailure(e.ctx, "initial")
	e.lastErr = err.Error()
	e.closeTransport()
	e.setState(Discovering)
}

// closeTransport closes the current transport but keeps the remote peer
// for a later call.
func (e *Engine) closeTransport() {
	if e.pm != nil {
		e.pm.Close()
		e.pm.SetRemote(e.remote.ID)
	}
	e.gen = 0
	e.offer = nil
	e.pendingVideo = false
	e.transport = ""
	e.remoteAudio, e.remoteVideo = false, false
}

// teardown is the terminal cleanup: capture stopped, transport closed,
// queues cleared, peer forgotten.
func (e *Engine) teardown() {
	e.acquirer.Release()
	e.stream = nil
	if e.pm != nil {
		e.pm.Close()
		e.pm = nil
	}
	e.gen = 0
	e.offer = nil
	e.pendingVideo = false
	e.transport = ""
	e.remoteAudio, e.remoteVideo = false, false
	e.remote = Peer{}
	e.room = ""
	e.joined = false
	e.setState(Idle)
}

// fail tears down without sending anything.
func (e *Engine) fail(err error) {
	if e.state == Idle {
		return
	}
	if err != nil {
		e.lastErr = err.Error()
	}
	e.teardown()
}

// send is best effort; a failure is logged, never retried.
func (e *Engine) send(msgType, to string, payload any) {
	msg, err := signaling.NewMessage(msgType, to, payload)
	if err != nil {
		e.logger.Warn("encode message", "type", msgType, "error", err)
		return
	}
	if err := e.ch.Send(msg); err != nil {
		e.logger.Debug("message not sent", "type", msgType, "error", err)
	}
}

func (e *Engine) publish() {
	s := Snapshot{
		State:       e.state,
		Room:        e.room,
		LocalID:     e.ch.ID(),
		Remote:      e.remote,
		RemoteAudio: e.remoteAudio,
		RemoteVideo: e.remoteVideo,
		Transport:   e.transport,
		Err:         e.lastErr,
	}
	if e.stream != nil {
		s.LocalAudio = e.stream.Enabled(webrtc.RTPCodecTypeAudio)
		s.LocalVideo = e.stream.Enabled(webrtc.RTPCodecTypeVideo)
	}

	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if s == e.snap {
		return
	}
	e.snap = s
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default:
			// Keep only the newest snapshot for a slow reader.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Snapshot returns the session as of the last handled event.
func (e *Engine) Snapshot() Snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Subscribe returns a channel of snapshots, starting with the current one.
// The channel is closed by cancel.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	e.snapMu.Lock()
	ch <- e.snap
	e.subs = append(e.subs, ch)
	e.snapMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.snapMu.Lock()
			defer e.snapMu.Unlock()
			for i, c := range e.subs {
				if c == ch {
					e.subs = append(e.subs[:i], e.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}
