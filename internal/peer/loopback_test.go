package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/media"
	"github.com/atharve16/MediMate/internal/signaling"
	"github.com/pion/webrtc/v4"
)

// wire delivers one side's messages to the other side's inbox, stamping From
// as the rendezvous service would.
type wire struct {
	from  string
	inbox chan *signaling.Message
}

func (w wire) Send(msg *signaling.Message) error {
	msg.From = w.from
	w.inbox <- msg
	return nil
}

type side struct {
	id      string
	manager *Manager
	inbox   chan *signaling.Message
	state   chan webrtc.PeerConnectionState
	media   chan MediaState
	tracks  []webrtc.TrackLocal
}

func newSide(t *testing.T, id string, api *API, inbox, peerInbox chan *signaling.Message) *side {
	s := &side{
		id:    id,
		inbox: inbox,
		state: make(chan webrtc.PeerConnectionState, 16),
		media: make(chan MediaState, 4),
	}
	s.manager = NewManager(api.NewTransport, wire{from: id, inbox: peerInbox}, WithEvents(Events{
		ConnectionState: func(_ uint64, st webrtc.PeerConnectionState) { s.state <- st },
		RemoteMedia:     func(_ uint64, ms MediaState) { s.media <- ms },
	}))

	p := &media.Synthetic{}
	stream, err := media.NewAcquirer(p, nil).Acquire(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stream.Stop() })
	s.tracks = stream.Tracks()
	return s
}

// loop handles inbound signaling one message at a time until done closes.
func (s *side) loop(t *testing.T, done <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-done:
			return
		case msg := <-s.inbox:
			s.handle(t, msg)
		}
	}
}

// drain handles whatever is queued without waiting for more.
func (s *side) drain(t *testing.T) int {
	n := 0
	for {
		select {
		case msg := <-s.inbox:
			s.handle(t, msg)
			n++
		default:
			return n
		}
	}
}

func (s *side) handle(t *testing.T, msg *signaling.Message) {
	var err error
	switch msg.Type {
	case signaling.MessageTypeCallOffer:
		s.manager.SetRemote(msg.From)
		if _, err = s.manager.Open(); err != nil {
			break
		}
		if err = s.manager.AttachTracks(s.tracks); err != nil {
			break
		}
		var offer webrtc.SessionDescription
		if offer, err = DecodeDescription(msg); err == nil {
			err = s.manager.Answer(offer)
		}
	case signaling.MessageTypeCallAnswer:
		var answer webrtc.SessionDescription
		if answer, err = DecodeDescription(msg); err == nil {
			err = s.manager.ApplyAnswer(answer)
		}
	case signaling.MessageTypeRenegotiationOffer:
		collided := s.manager.Offering()
		if collided && s.id < msg.From {
			break
		}
		var offer webrtc.SessionDescription
		if offer, err = DecodeDescription(msg); err == nil {
			err = s.manager.HandleRenegotiationOffer(offer)
		}
		if err == nil && collided {
			err = s.manager.Renegotiate()
		}
	case signaling.MessageTypeRenegotiationAnswer:
		var answer webrtc.SessionDescription
		if answer, err = DecodeDescription(msg); err == nil {
			err = s.manager.HandleRenegotiationAnswer(answer)
		}
	case signaling.MessageTypeIceCandidate:
		var c webrtc.ICECandidateInit
		if c, err = DecodeCandidate(msg); err == nil {
			err = s.manager.AddRemoteCandidate(c)
		}
	}
	if err != nil {
		t.Errorf("%s handling %s: %v", s.id, msg.Type, err)
	}
}

func waitConnected(t *testing.T, s *side) {
	t.Helper()
	deadline := time.After(20 * time.Second)
	for {
		select {
		case st := <-s.state:
			if st == webrtc.PeerConnectionStateConnected {
				return
			}
			if st == webrtc.PeerConnectionStateFailed {
				t.Fatalf("%s: connection failed", s.id)
			}
		case <-deadline:
			t.Fatalf("%s: not connected in time", s.id)
		}
	}
}

// connectPair sets up a call from a to b and returns once both sides are
// connected. stop halts both signaling loops and waits for them.
func connectPair(t *testing.T) (a, b *side, stop func()) {
	t.Helper()
	cfg := &config.Config{}
	api, err := NewAPI(cfg, &media.Synthetic{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	aInbox := make(chan *signaling.Message, 64)
	bInbox := make(chan *signaling.Message, 64)
	a = newSide(t, "a", api, aInbox, bInbox)
	b = newSide(t, "b", api, bInbox, aInbox)
	t.Cleanup(func() {
		a.manager.Close()
		b.manager.Close()
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go a.loop(t, done, &wg)
	go b.loop(t, done, &wg)
	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
	t.Cleanup(stop)

	a.manager.SetRemote("b")
	if _, err := a.manager.Open(); err != nil {
		t.Fatal(err)
	}
	if err := a.manager.AttachTracks(a.tracks); err != nil {
		t.Fatal(err)
	}
	if err := a.manager.Offer(); err != nil {
		t.Fatal(err)
	}

	waitConnected(t, a)
	waitConnected(t, b)
	return a, b, stop
}

func TestLoopbackCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}
	a, b, _ := connectPair(t)

	if !a.manager.Sending(webrtc.RTPCodecTypeVideo) || !b.manager.Sending(webrtc.RTPCodecTypeAudio) {
		t.Error("local tracks not attached")
	}

	// The control channel opens once SCTP is up.
	deadline := time.Now().Add(10 * time.Second)
	for {
		err := a.manager.SendMediaState(MediaState{Audio: false, Video: true})
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("control channel never opened: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	select {
	case ms := <-b.media:
		if ms.Audio || !ms.Video {
			t.Errorf("media state = %+v", ms)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("media state not delivered")
	}
}

func TestLoopbackRenegotiationCollision(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real ICE sockets")
	}
	a, b, stop := connectPair(t)
	stop()

	// Both sides renegotiate before seeing the other's offer.
	if err := a.manager.Renegotiate(); err != nil {
		t.Fatal(err)
	}
	if err := b.manager.Renegotiate(); err != nil {
		t.Fatal(err)
	}
	settle := func() {
		t.Helper()
		for i := 0; i < 100; i++ {
			if a.drain(t)+b.drain(t) == 0 {
				return
			}
		}
		t.Fatal("signaling did not settle")
	}
	settle()

	if a.manager.Offering() || b.manager.Offering() {
		t.Fatalf("offer left pending: a=%v b=%v", a.manager.Offering(), b.manager.Offering())
	}

	// Both transports are stable again, so later renegotiations still work.
	if err := a.manager.Renegotiate(); err != nil {
		t.Fatalf("renegotiation after collision: %v", err)
	}
	settle()
	if err := b.manager.Renegotiate(); err != nil {
		t.Fatalf("renegotiation after collision: %v", err)
	}
	settle()
	if a.manager.Offering() || b.manager.Offering() {
		t.Error("follow-up renegotiation left an offer pending")
	}
}
