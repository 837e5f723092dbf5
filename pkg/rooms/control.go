package rooms

import "encoding/json"

// Framing prefixes multiplexing room traffic inside the plaintext
// channel. Everything without a prefix is a direct message.
const (
	ctlPrefix = "ROOMCTL::"
	msgPrefix = "ROOMMSG::"
)

// Control frame types.
const (
	ctlAnnounce = "room_announce"
	ctlJoin     = "room_join"
	ctlJoinAck  = "room_join_ack"
	ctlMembers  = "room_members"
	ctlLeave    = "room_leave"
	ctlKick     = "room_kick"
)

// roomInfo is the public room payload carried in announces and join
// acks. Password salt and hash never appear on the wire.
type roomInfo struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	OwnerID      string  `json:"owner_id"`
	CreatedAt    float64 `json:"created_at"`
	MaxMembers   int     `json:"max_members"`
	Locked       bool    `json:"locked"`
	Discoverable bool    `json:"discoverable"`
}

// controlFrame is the decode side: a superset of every frame type's
// fields. Encoding uses the per-type structs below so each frame
// carries exactly the fields its type defines.
type controlFrame struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"room_id"`
	Password string    `json:"password"`
	OK       bool      `json:"ok"`
	Reason   string    `json:"reason"`
	Members  []string  `json:"members"`
	Room     *roomInfo `json:"room"`
}

type announceFrame struct {
	Type string   `json:"type"`
	Room roomInfo `json:"room"`
}

type joinFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
}

type joinAckFrame struct {
	Type    string    `json:"type"`
	RoomID  string    `json:"room_id"`
	OK      bool      `json:"ok"`
	Reason  string    `json:"reason,omitempty"`
	Members []string  `json:"members,omitempty"`
	Room    *roomInfo `json:"room,omitempty"`
}

type membersFrame struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"room_id"`
	Members []string `json:"members"`
}

type leaveFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type kickFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Reason string `json:"reason,omitempty"`
}

// encodeCtl wraps a frame value into a ROOMCTL plaintext line.
func encodeCtl(frame interface{}) (string, error) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return "", err
	}
	return ctlPrefix + string(raw), nil
}

// encodeMsg wraps a room message into a ROOMMSG plaintext line. The
// text may contain any characters, including the separator.
func encodeMsg(roomID, text string) string {
	return msgPrefix + roomID + "::" + text
}
