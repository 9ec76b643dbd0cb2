package signaling

import "github.com/atharve16/MediMate/internal/identity"

// JoinRoom announces id in room. Discovery is asynchronous: the service
// acknowledges with room:joined and then delivers user:joined for each
// occupant, while existing occupants learn about the joiner the same way.
func JoinRoom(ch Channel, id identity.Identity, room string) error {
	msg, err := NewMessage(MessageTypeRoomJoin, "", JoinPayload{Email: id.Email, Name: id.Name, Room: room})
	if err != nil {
		return err
	}
	msg.Room = room
	return ch.Send(msg)
}

// LeaveRoom tells the service this participant is gone from its room.
func LeaveRoom(ch Channel) error {
	return ch.Send(&Message{Type: MessageTypeRoomLeave})
}
