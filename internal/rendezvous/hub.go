// Package rendezvous is the room coordinator service: participants register
// over a websocket, join rooms by name, discover each other through
// user:joined notifications and relay directed call signaling.
package rendezvous

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/observe"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/google/uuid"
)

// Errors reported to participants in an error frame.
var (
	ErrRoomFull       = errors.New("room is full")
	ErrNotRegistered  = errors.New("register first")
	ErrNotInRoom      = errors.New("you must join a room first")
	ErrPeerNotInRoom  = errors.New("recipient is not in your room")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrMissingEmail   = errors.New("email is required")
	ErrHubStopped     = errors.New("hub stopped")
)

type inbound struct {
	from *Participant
	msg  *signaling.Message
}

// Hub owns every room and participant. All state is mutated by the Run
// goroutine only.
type Hub struct {
	capacity     int
	metrics      *observe.Metrics
	logger       *slog.Logger
	rooms        map[string]*Room
	participants map[string]*Participant

	register   chan *Participant
	unregister chan *Participant
	inbound    chan inbound
	snapshots  chan chan []RoomInfo
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics records hub activity on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a hub whose rooms hold at most capacity participants
// (0 = unlimited). Call Run to start it.
func NewHub(capacity int, opts ...Option) *Hub {
	h := &Hub{
		capacity:     capacity,
		logger:       slog.Default().With("component", "rendezvous"),
		rooms:        make(map[string]*Room),
		participants: make(map[string]*Participant),
		register:     make(chan *Participant),
		unregister:   make(chan *Participant),
		inbound:      make(chan inbound, 64),
		snapshots:    make(chan chan []RoomInfo),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Run is the hub's processing loop. It returns when ctx is cancelled, after
// closing every participant's send queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("hub started", "room_capacity", h.capacity)

	for {
		select {
		case p := <-h.register:
			h.participants[p.ID] = p
			h.metrics.ActiveParticipants.Add(ctx, 1)
			h.logger.Debug("participant connected", "participant", p.ID)

		case p := <-h.unregister:
			h.drop(ctx, p)

		case in := <-h.inbound:
			if _, ok := h.participants[in.from.ID]; !ok {
				continue
			}
			h.handle(ctx, in.from, in.msg)

		case reply := <-h.snapshots:
			rooms := make([]RoomInfo, 0, len(h.rooms))
			for _, r := range h.rooms {
				rooms = append(rooms, r.info())
			}
			sortRooms(rooms)
			reply <- rooms

		case <-ctx.Done():
			for _, p := range h.participants {
				h.drop(context.Background(), p)
			}
			h.logger.Info("hub stopped")
			return
		}
	}
}

// join hands a new connection to the hub.
func (h *Hub) join(p *Participant) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// leave is called by the participant's read pump on exit.
func (h *Hub) leave(p *Participant) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

// submit forwards a frame to the hub; false means the hub is gone.
func (h *Hub) submit(p *Participant, msg *signaling.Message) bool {
	select {
	case h.inbound <- inbound{from: p, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Rooms returns a snapshot of all rooms ordered by id.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ping succeeds when the Run loop is responsive. Used for readiness.
func (h *Hub) Ping(ctx context.Context) error {
	_, err := h.Rooms(ctx)
	return err
}

func newParticipantID() string {
	return uuid.NewString()
}

func (h *Hub) handle(ctx context.Context, p *Participant, msg *signaling.Message) {
	if msg.Type != signaling.MessageTypeRegister && !p.registered {
		h.reject(p, ErrNotRegistered)
		return
	}

	switch {
	case msg.Type == signaling.MessageTypeRegister:
		h.handleRegister(p, msg)

	case msg.Type == signaling.MessageTypeRoomJoin:
		h.handleJoin(ctx, p, msg)

	case msg.Type == signaling.MessageTypeRoomLeave:
		h.leaveRoom(ctx, p)

	case signaling.Directed(msg.Type):
		h.relay(ctx, p, msg)

	default:
		h.logger.Debug("unknown message type", "participant", p.ID, "type", msg.Type)
		h.reject(p, ErrUnknownMessage)
	}
}

func (h *Hub) handleRegister(p *Participant, msg *signaling.Message) {
	var reg signaling.RegisterPayload
	if err := msg.Decode(&reg); err != nil || reg.Email == "" {
		h.reject(p, ErrMissingEmail)
		return
	}
	p.Identity = identity.Identity{Email: reg.Email, Name: reg.Name}
	p.registered = true

	ack, _ := signaling.NewMessage(signaling.MessageTypeRegistered, "", signaling.RegisteredPayload{ID: p.ID})
	h.deliver(p, ack)
	h.logger.Info("participant registered", "participant", p.ID, "email", reg.Email)
}

func (h *Hub) handleJoin(ctx context.Context, p *Participant, msg *signaling.Message) {
	var join signaling.JoinPayload
	if len(msg.Payload) > 0 {
		if err := msg.Decode(&join); err != nil {
			h.reject(p, err)
			return
		}
	}
	roomID := join.Room
	if roomID == "" {
		roomID = msg.Room
	}
	if join.Email != "" {
		p.Identity = identity.Identity{Email: join.Email, Name: join.Name}
	}

	if roomID != "" && roomID == p.RoomID {
		// A participant back from Idle rediscovers whoever is still here.
		room := h.rooms[roomID]
		h.ackJoin(p, room)
		for _, other := range room.Occupants() {
			if other != p {
				h.deliver(other, peerJoined(p))
				h.deliver(p, peerJoined(other))
			}
		}
		return
	}
	if p.RoomID != "" {
		h.leaveRoom(ctx, p)
	}

	if roomID == "" {
		roomID = newRoomName(func(id string) bool { _, ok := h.rooms[id]; return ok })
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID, h.capacity)
	}
	if room.Full() {
		h.logger.Info("room join refused", "room", roomID, "participant", p.ID, "reason", "full")
		h.metrics.RecordRejectedJoin(ctx, "full")
		h.reject(p, ErrRoomFull)
		return
	}
	if !ok {
		h.rooms[roomID] = room
		h.metrics.ActiveRooms.Add(ctx, 1)
		h.logger.Info("room created", "room", roomID)
	}

	existing := room.Occupants()
	room.add(p)
	p.RoomID = roomID
	h.ackJoin(p, room)
	h.logger.Info("participant joined room", "room", roomID, "participant", p.ID, "occupants", room.Len())

	for _, other := range existing {
		h.deliver(other, peerJoined(p))
		h.deliver(p, peerJoined(other))
	}
}

func (h *Hub) ackJoin(p *Participant, room *Room) {
	ack, _ := signaling.NewMessage(signaling.MessageTypeRoomJoined, "",
		signaling.RoomJoinedPayload{Room: room.ID, Capacity: room.Capacity})
	ack.Room = room.ID
	h.deliver(p, ack)
}

func peerJoined(p *Participant) *signaling.Message {
	msg, _ := signaling.NewMessage(signaling.MessageTypePeerJoined, "", signaling.PeerPayload{
		ID:    p.ID,
		Email: p.Identity.Email,
		Name:  p.Identity.Name,
	})
	msg.From = p.ID
	msg.Room = p.RoomID
	return msg
}

func (h *Hub) relay(ctx context.Context, p *Participant, msg *signaling.Message) {
	if p.RoomID == "" {
		h.reject(p, ErrNotInRoom)
		return
	}
	room := h.rooms[p.RoomID]
	target, ok := h.participants[msg.To]
	if !ok || room == nil || !room.Has(msg.To) || msg.To == p.ID {
		h.logger.Debug("relay refused", "type", msg.Type, "from", p.ID, "to", msg.To, "room", p.RoomID)
		h.reject(p, ErrPeerNotInRoom)
		return
	}

	msg.From = p.ID
	msg.Room = p.RoomID
	h.deliver(target, msg)
	h.metrics.RecordRelay(ctx, msg.Type)
	h.logger.Debug("relayed", "type", msg.Type, "from", p.ID, "to", target.ID, "room", p.RoomID)
}

func (h *Hub) leaveRoom(ctx context.Context, p *Participant) {
	room, ok := h.rooms[p.RoomID]
	p.RoomID = ""
	if !ok {
		return
	}
	room.remove(p.ID)

	if room.Len() == 0 {
		delete(h.rooms, room.ID)
		h.metrics.ActiveRooms.Add(ctx, -1)
		h.logger.Info("room deleted", "room", room.ID)
		return
	}

	left, _ := signaling.NewMessage(signaling.MessageTypePeerLeft, "", signaling.PeerPayload{ID: p.ID})
	left.From = p.ID
	left.Room = room.ID
	for _, other := range room.Occupants() {
		h.deliver(other, left)
	}
	h.logger.Info("participant left room", "room", room.ID, "participant", p.ID)
}

// drop removes p entirely and closes its send queue. Safe to call twice.
func (h *Hub) drop(ctx context.Context, p *Participant) {
	if _, ok := h.participants[p.ID]; !ok {
		return
	}
	h.leaveRoom(ctx, p)
	delete(h.participants, p.ID)
	close(p.send)
	h.metrics.ActiveParticipants.Add(ctx, -1)
	h.logger.Debug("participant disconnected", "participant", p.ID)
}

// deliver never blocks the hub; a participant whose queue is full is
// disconnected.
func (h *Hub) deliver(p *Participant, msg *signaling.Message) {
	if _, ok := h.participants[p.ID]; !ok {
		return
	}
	select {
	case p.send <- msg:
	default:
		h.logger.Warn("send queue full, dropping participant", "participant", p.ID)
		h.drop(context.Background(), p)
	}
}

func (h *Hub) reject(p *Participant, err error) {
	msg, _ := signaling.NewMessage(signaling.MessageTypeError, "", signaling.ErrorPayload{Error: err.Error()})
	h.deliver(p, msg)
}
