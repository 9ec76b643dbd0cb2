package cmd

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/media"
	"github.com/atharve16/MediMate/internal/peer"
	"github.com/atharve16/MediMate/internal/rendezvous"
	"github.com/atharve16/MediMate/internal/session"
	"github.com/atharve16/MediMate/internal/signaling"
)

func startHub(t *testing.T) *httptest.Server {
	t.Helper()
	hub := rendezvous.NewHub(config.DefaultRoomCapacity)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(rendezvous.Routes(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func TestFetchRooms(t *testing.T) {
	srv := startHub(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := signaling.Dial(ctx, wsURL, identity.Identity{Email: "a@example.org"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := signaling.JoinRoom(c, identity.Identity{Email: "a@example.org"}, "lobby"); err != nil {
		t.Fatal(err)
	}
	<-c.Incoming() // room:joined

	rooms, err := fetchRooms(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != "lobby" || rooms[0].Capacity != 2 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestFetchRoomsBadStatus(t *testing.T) {
	srv := startHub(t)
	if _, err := fetchRooms(context.Background(), srv.URL+"/nope"); err == nil {
		t.Error("expected an error for a missing endpoint")
	}
}

func TestNewProvider(t *testing.T) {
	p, err := newProvider(config.MediaSynthetic, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*media.Synthetic); !ok {
		t.Errorf("synthetic mode gave %T", p)
	}
	if p, _ := newProvider(config.MediaNone, slog.Default()); p != (media.None{}) {
		t.Errorf("none mode gave %T", p)
	}
}

// participant runs one headless side against the hub.
func participant(t *testing.T, ctx context.Context, wsURL, email string) *session.Engine {
	t.Helper()
	cfg := &config.Config{}
	provider := &media.Synthetic{DenyVideo: email == "b@example.org"}
	api, err := peer.NewAPI(cfg, provider, nil)
	if err != nil {
		t.Fatal(err)
	}
	id := identity.Identity{Email: email}
	client, err := signaling.Dial(ctx, wsURL, id)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	e := session.New(client, media.NewAcquirer(provider, nil), api.NewTransport, session.WithIdentity(id))
	go e.Run(ctx)
	if err := e.Join(ctx, "e2e"); err != nil {
		t.Fatal(err)
	}
	go autopilot(ctx, e, true)
	return e
}

func waitState(t *testing.T, e *session.Engine, want session.State) session.Snapshot {
	t.Helper()
	updates, stop := e.Subscribe()
	defer stop()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.State == want {
				return s
			}
		case <-deadline:
			t.Fatalf("%s never reached %s (last %+v)", e.Snapshot().LocalID, want, e.Snapshot())
		}
	}
}

func TestHeadlessCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}
	srv := startHub(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a := participant(t, ctx, wsURL, "a@example.org")
	b := participant(t, ctx, wsURL, "b@example.org")

	sa := waitState(t, a, session.Connected)
	sb := waitState(t, b, session.Connected)
	if sa.Remote.ID != sb.LocalID || sb.Remote.ID != sa.LocalID {
		t.Errorf("paired %s<->%s and %s<->%s", sa.LocalID, sa.Remote.ID, sb.LocalID, sb.Remote.ID)
	}
	if !sb.LocalAudio || sb.LocalVideo {
		t.Errorf("b should be audio-only: %+v", sb)
	}

	if err := a.End(ctx); err != nil {
		t.Fatal(err)
	}
	waitState(t, b, session.Idle)
}
