package session

// State is the call session's top-level state.
type State int

const (
	Idle State = iota
	// Discovering: in a room, waiting for or holding a peer, no call.
	Discovering
	// Calling: our offer is out, waiting for the answer.
	Calling
	// Ringing: the peer's offer is held until Accept or Decline.
	Ringing
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Calling:
		return "calling"
	case Ringing:
		return "ringing"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// inCall reports whether a call is being set up or running.
func (s State) inCall() bool {
	return s == Calling || s == Ringing || s == Connected
}

// Peer is the other participant.
type Peer struct {
	ID    string
	Email string
	Name  string
}

// Display prefers the name and falls back to the email, then the id.
func (p Peer) Display() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	}
	return p.ID
}

// Snapshot is a copy of the session as seen by a caller.
type Snapshot struct {
	State   State
	Room    string
	LocalID string
	Remote  Peer

	LocalAudio  bool
	LocalVideo  bool
	RemoteAudio bool
	RemoteVideo bool

	// Transport is the peer connection state, empty without a transport.
	Transport string
	// Err is the last error worth showing, cleared on the next join.
	Err string
}

// ShouldInitiate is the calling policy for surfaces that dial automatically:
// the participant with the smaller id calls. It agrees with the offer
// collision rule, where the smaller id's offer wins.
func ShouldInitiate(local, remote string) bool {
	return remote != "" && local < remote
}
