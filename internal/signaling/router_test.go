package signaling

import (
	"encoding/json"
	"testing"
)

func TestRouterDispatch(t *testing.T) {
	var got []string
	r := NewRouter().
		On(MessageTypeCallOffer, func(m *Message) { got = append(got, "offer:"+m.From) }).
		Otherwise(func(m *Message) { got = append(got, "other:"+m.Type) })

	if !r.Dispatch(&Message{Type: MessageTypeCallOffer, From: "b"}) {
		t.Error("offer should be handled")
	}
	if r.Dispatch(&Message{Type: "mystery"}) {
		t.Error("mystery should not be handled")
	}
	if len(got) != 2 || got[0] != "offer:b" || got[1] != "other:mystery" {
		t.Errorf("got %v", got)
	}
	if !r.Handles(MessageTypeCallOffer) || r.Handles(MessageTypeCallEnded) {
		t.Error("Handles disagrees with table")
	}
}

func TestMessagePayload(t *testing.T) {
	msg, err := NewMessage(MessageTypePeerJoined, "", PeerPayload{ID: "x", Email: "x@example.org"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(msg)
	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	var p PeerPayload
	if err := back.Decode(&p); err != nil || p.ID != "x" {
		t.Errorf("Decode = %+v, %v", p, err)
	}
	if err := (&Message{Type: MessageTypeCallOffer}).Decode(&p); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestDirected(t *testing.T) {
	for _, typ := range []string{MessageTypeCallOffer, MessageTypeIceCandidate, MessageTypeCallEnded} {
		if !Directed(typ) {
			t.Errorf("%s should be directed", typ)
		}
	}
	for _, typ := range []string{MessageTypeRoomJoin, MessageTypePeerJoined, MessageTypeRegister} {
		if Directed(typ) {
			t.Errorf("%s should not be directed", typ)
		}
	}
}
