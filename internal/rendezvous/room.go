package rendezvous

import "sort"

// Room is a set of participants that can address each other.
type Room struct {
	ID       string
	Capacity int // 0 means unlimited

	members map[string]*Participant
	order   []string
}

func newRoom(id string, capacity int) *Room {
	return &Room{ID: id, Capacity: capacity, members: make(map[string]*Participant)}
}

// Full reports whether one more participant would exceed the capacity.
func (r *Room) Full() bool {
	return r.Capacity > 0 && len(r.members) >= r.Capacity
}

// Len is the number of present participants.
func (r *Room) Len() int {
	return len(r.members)
}

// Has reports whether id is present.
func (r *Room) Has(id string) bool {
	_, ok := r.members[id]
	return ok
}

func (r *Room) add(p *Participant) {
	if r.Has(p.ID) {
		return
	}
	r.members[p.ID] = p
	r.order = append(r.order, p.ID)
}

func (r *Room) remove(id string) {
	if !r.Has(id) {
		return
	}
	delete(r.members, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Occupants returns participants in join order.
func (r *Room) Occupants() []*Participant {
	out := make([]*Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// RoomInfo is the public snapshot served by /api/rooms.
type RoomInfo struct {
	ID           string   `json:"id"`
	Participants int      `json:"participants"`
	Capacity     int      `json:"capacity"`
	Members      []string `json:"members"`
}

func (r *Room) info() RoomInfo {
	names := make([]string, 0, len(r.order))
	for _, p := range r.Occupants() {
		names = append(names, p.Identity.Display())
	}
	return RoomInfo{ID: r.ID, Participants: len(r.members), Capacity: r.Capacity, Members: names}
}

func sortRooms(rooms []RoomInfo) {
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
}
