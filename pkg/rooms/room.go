package rooms

import "sort"

// room is the internal mutable record. All access goes through the
// Manager mutex; callers outside the package only ever see Snapshots.
type room struct {
	id           string
	name         string
	ownerID      string
	createdAt    float64
	maxMembers   int
	locked       bool
	discoverable bool

	passwordHash string
	passwordSalt string

	members map[string]struct{}
	joined  bool
	pending bool
}

func (r *room) addMember(id string) {
	if r.members == nil {
		r.members = make(map[string]struct{})
	}
	r.members[id] = struct{}{}
}

func (r *room) removeMember(id string) {
	delete(r.members, id)
}

func (r *room) hasMember(id string) bool {
	_, ok := r.members[id]
	return ok
}

func (r *room) sortedMembers() []string {
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *room) setMembers(ids []string) {
	r.members = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		r.members[id] = struct{}{}
	}
}

// info is the public payload advertised on the wire.
func (r *room) info() roomInfo {
	return roomInfo{
		ID:           r.id,
		Name:         r.name,
		OwnerID:      r.ownerID,
		CreatedAt:    r.createdAt,
		MaxMembers:   r.maxMembers,
		Locked:       r.locked,
		Discoverable: r.discoverable,
	}
}

// Snapshot is the immutable per-room view handed to the UI.
// The member list is disclosed only to members and the owner.
type Snapshot struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	OwnerID      string   `json:"owner_id"`
	CreatedAt    float64  `json:"created_at"`
	MaxMembers   int      `json:"max_members"`
	Locked       bool     `json:"locked"`
	Discoverable bool     `json:"discoverable"`
	MemberCount  int      `json:"member_count"`
	Members      []string `json:"members"`
	Joined       bool     `json:"joined"`
	Pending      bool     `json:"pending"`
	IsOwner      bool     `json:"is_owner"`
}

func (r *room) snapshot(selfID string) Snapshot {
	isOwner := r.ownerID == selfID
	members := []string{}
	if r.joined || isOwner {
		members = r.sortedMembers()
	}
	return Snapshot{
		ID:           r.id,
		Name:         r.name,
		OwnerID:      r.ownerID,
		CreatedAt:    r.createdAt,
		MaxMembers:   r.maxMembers,
		Locked:       r.locked,
		Discoverable: r.discoverable,
		MemberCount:  len(r.members),
		Members:      members,
		Joined:       r.joined,
		Pending:      r.pending,
		IsOwner:      isOwner,
	}
}

// Event is a local room lifecycle notification drained by the UI.
type Event struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Event types.
const (
	EventDiscovered = "room_discovered"
	EventJoined     = "room_joined"
	EventJoinDenied = "room_join_denied"
	EventKicked     = "room_kicked"
)
