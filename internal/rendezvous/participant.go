package rendezvous

import (
	"log/slog"
	"time"

	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Participant is one websocket connection as seen by the hub.
type Participant struct {
	// ID is the transport id, assigned on connect.
	ID string

	// Identity is filled by user:register and refreshed by room:join.
	Identity identity.Identity

	// RoomID is empty until the participant joins a room.
	RoomID string

	registered bool

	hub  *Hub
	conn *websocket.Conn

	// send is drained by writePump; only the hub closes it.
	send chan *signaling.Message
}

func newParticipant(hub *Hub, conn *websocket.Conn, id string) *Participant {
	return &Participant{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *signaling.Message, sendBuffer),
	}
}

// readPump pumps messages from the websocket connection to the hub. There is
// at most one reader per connection.
func (p *Participant) readPump() {
	defer func() {
		p.hub.leave(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg signaling.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				p.hub.logger.Warn("read failed", "participant", p.ID, "error", err)
			}
			return
		}
		if !p.hub.submit(p, &msg) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection. There is
// at most one writer per connection.
func (p *Participant) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				slog.Debug("write failed", "participant", p.ID, "error", err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
