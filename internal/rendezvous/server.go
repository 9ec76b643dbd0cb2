package rendezvous

import (
	"encoding/json"
	"net/http"

	"github.com/atharve16/MediMate/internal/health"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  maxMessageSize,
	WriteBufferSize: maxMessageSize,

	// Browsers and CLI participants connect from anywhere; rooms are the
	// only access control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and hands the connection to hub.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		p := newParticipant(hub, conn, newParticipantID())
		if !hub.join(p) {
			conn.Close()
			return
		}

		go p.writePump()
		go p.readPump()
	}
}

// ServeRooms returns the JSON room snapshot.
func ServeRooms(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Rooms(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(rooms)
	}
}

// Routes wires the full HTTP surface of the service. metrics may be nil.
func Routes(hub *Hub, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(hub))
	mux.HandleFunc("GET /api/rooms", ServeRooms(hub))
	health.New(health.Checker{Name: "hub", Check: hub.Ping}).Register(mux)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
