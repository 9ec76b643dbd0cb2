package peer

import (
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	controlLabel = "control"
	controlID    = uint16(0)
)

// Control message types.
const (
	ControlMediaState = "media_state"
)

// ControlMessage is a frame on the in-call control channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MediaState tells the other side which local kinds are being sent.
type MediaState struct {
	Audio bool `msgpack:"audio"`
	Video bool `msgpack:"video"`
}

// DecodePayload decodes the message payload into v.
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func newControlMessage(t string, payload any) ([]byte, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(ControlMessage{Type: t, Payload: b})
}

// openControl creates the pre-negotiated control channel. Both sides create
// it with the same id, so no in-band open handshake is needed.
func openControl(t Transport) (*webrtc.DataChannel, error) {
	negotiated := true
	ordered := true
	id := controlID
	return t.CreateDataChannel(controlLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		Ordered:    &ordered,
		ID:         &id,
	})
}
