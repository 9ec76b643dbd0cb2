package rendezvous

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/observe"
	"github.com/atharve16/MediMate/internal/signaling"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const waitFor = 5 * time.Second

type testService struct {
	hub    *Hub
	url    string
	http   string
	reader *sdkmetric.ManualReader
}

func startService(t *testing.T, capacity int) *testService {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	hub := NewHub(capacity, WithMetrics(metrics))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(Routes(hub, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testService{
		hub:    hub,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		http:   srv.URL,
		reader: reader,
	}
}

func connect(t *testing.T, s *testService, email string) *signaling.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	c, err := signaling.Dial(ctx, s.url, identity.Identity{Email: email})
	if err != nil {
		t.Fatalf("Dial(%s): %v", email, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// expect returns the next message and fails unless it has type want.
func expect(t *testing.T, c *signaling.Client, want string) *signaling.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		if !ok {
			t.Fatalf("channel closed waiting for %s", want)
		}
		if msg.Type != want {
			t.Fatalf("got %s (%s), want %s", msg.Type, msg.Payload, want)
		}
		return msg
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", want)
	}
	return nil
}

func join(t *testing.T, c *signaling.Client, email, room string) string {
	t.Helper()
	if err := signaling.JoinRoom(c, identity.Identity{Email: email}, room); err != nil {
		t.Fatal(err)
	}
	var ack signaling.RoomJoinedPayload
	if err := expect(t, c, signaling.MessageTypeRoomJoined).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	return ack.Room
}

func TestJoinNotifiesBothSides(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")

	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r1")

	var seenByB, seenByA signaling.PeerPayload
	if err := expect(t, b, signaling.MessageTypePeerJoined).Decode(&seenByB); err != nil {
		t.Fatal(err)
	}
	if err := expect(t, a, signaling.MessageTypePeerJoined).Decode(&seenByA); err != nil {
		t.Fatal(err)
	}

	if seenByB.ID != a.ID() || seenByB.Email != "a@example.org" {
		t.Errorf("b saw %+v, want a (%s)", seenByB, a.ID())
	}
	if seenByA.ID != b.ID() || seenByA.Email != "b@example.org" {
		t.Errorf("a saw %+v, want b (%s)", seenByA, b.ID())
	}
}

func TestCapacityRejectsExtraJoiner(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")
	c := connect(t, s, "c@example.org")

	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r1")

	if err := signaling.JoinRoom(c, identity.Identity{Email: "c@example.org"}, "r1"); err != nil {
		t.Fatal(err)
	}
	var e signaling.ErrorPayload
	if err := expect(t, c, signaling.MessageTypeError).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if e.Error != ErrRoomFull.Error() {
		t.Errorf("error = %q, want %q", e.Error, ErrRoomFull)
	}

	rooms, err := s.hub.Rooms(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].Participants != 2 {
		t.Errorf("rooms = %+v, want one room with 2 participants", rooms)
	}

	var rm metricdata.ResourceMetrics
	if err := s.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	if !hasMetric(rm, "medimate.rendezvous.joins_rejected") {
		t.Error("joins_rejected not recorded")
	}
}

func TestUnlimitedCapacity(t *testing.T) {
	s := startService(t, 0)
	for _, email := range []string{"a@x", "b@x", "c@x"} {
		c := connect(t, s, email)
		join(t, c, email, "big")
	}
	rooms, _ := s.hub.Rooms(context.Background())
	if len(rooms) != 1 || rooms[0].Participants != 3 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestRelayStampsSender(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")
	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r1")
	expect(t, b, signaling.MessageTypePeerJoined)
	expect(t, a, signaling.MessageTypePeerJoined)

	offer, _ := signaling.NewMessage(signaling.MessageTypeCallOffer, b.ID(), map[string]string{"type": "offer", "sdp": "v=0"})
	offer.From = "spoofed"
	if err := a.Send(offer); err != nil {
		t.Fatal(err)
	}
	got := expect(t, b, signaling.MessageTypeCallOffer)
	if got.From != a.ID() || got.Room != "r1" {
		t.Errorf("relayed from=%q room=%q, want from=%q room=r1", got.From, got.Room, a.ID())
	}

	stray, _ := signaling.NewMessage(signaling.MessageTypeCallEnded, "nobody", nil)
	a.Send(stray)
	var e signaling.ErrorPayload
	expect(t, a, signaling.MessageTypeError).Decode(&e)
	if e.Error != ErrPeerNotInRoom.Error() {
		t.Errorf("error = %q", e.Error)
	}
}

func TestRelayAcrossRoomsRefused(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")
	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r2")

	msg, _ := signaling.NewMessage(signaling.MessageTypeCallOffer, b.ID(), map[string]string{"sdp": "v=0"})
	a.Send(msg)
	expect(t, a, signaling.MessageTypeError)
}

func TestDisconnectNotifiesPeerLeft(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")
	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r1")
	expect(t, b, signaling.MessageTypePeerJoined)
	expect(t, a, signaling.MessageTypePeerJoined)

	bID := b.ID()
	b.Close()

	var left signaling.PeerPayload
	if err := expect(t, a, signaling.MessageTypePeerLeft).Decode(&left); err != nil {
		t.Fatal(err)
	}
	if left.ID != bID {
		t.Errorf("left = %q, want %q", left.ID, bID)
	}

	if err := signaling.LeaveRoom(a); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		rooms, _ := s.hub.Rooms(context.Background())
		if len(rooms) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("room not deleted after last participant left")
}

func TestJoinWithoutRoomMintsName(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")

	room := join(t, a, "a@example.org", "")
	if strings.Count(room, "-") != 2 {
		t.Errorf("minted room %q does not look like word-word-word", room)
	}
}

func TestRejoinSameRoomIsIdempotent(t *testing.T) {
	s := startService(t, 1)
	a := connect(t, s, "a@example.org")
	join(t, a, "a@example.org", "solo")
	join(t, a, "a@example.org", "solo")

	rooms, _ := s.hub.Rooms(context.Background())
	if len(rooms) != 1 || rooms[0].Participants != 1 {
		t.Errorf("rooms = %+v", rooms)
	}
}

func TestRejoinRediscoversOccupant(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	b := connect(t, s, "b@example.org")
	join(t, a, "a@example.org", "r1")
	join(t, b, "b@example.org", "r1")
	expect(t, a, signaling.MessageTypePeerJoined)
	expect(t, b, signaling.MessageTypePeerJoined)

	join(t, b, "b@example.org", "r1")
	var seen signaling.PeerPayload
	if err := expect(t, b, signaling.MessageTypePeerJoined).Decode(&seen); err != nil {
		t.Fatal(err)
	}
	if seen.ID != a.ID() {
		t.Errorf("b rediscovered %s, want %s", seen.ID, a.ID())
	}
	expect(t, a, signaling.MessageTypePeerJoined)
}

func TestHTTPSurface(t *testing.T) {
	s := startService(t, 2)
	a := connect(t, s, "a@example.org")
	join(t, a, "a@example.org", "r1")

	resp, err := http.Get(s.http + "/api/rooms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rooms []RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 || rooms[0].ID != "r1" || rooms[0].Members[0] != "a@example.org" {
		t.Errorf("rooms = %+v", rooms)
	}

	ready, err := http.Get(s.http + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Errorf("readyz = %d", ready.StatusCode)
	}
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}
