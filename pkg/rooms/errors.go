package rooms

import "errors"

// Room policy and validation errors.
var (
	// ErrRoomNotFound is returned when the room id is not known locally.
	ErrRoomNotFound = errors.New("rooms: room not found")

	// ErrOwnerCannotLeave is returned when the owner tries to leave
	// its own room.
	ErrOwnerCannotLeave = errors.New("rooms: owner cannot leave the room")

	// ErrNotOwner is returned when a member-management operation is
	// attempted on a room this process does not own.
	ErrNotOwner = errors.New("rooms: only the owner can kick members")

	// ErrCannotKickSelf is returned when the owner tries to kick itself.
	ErrCannotKickSelf = errors.New("rooms: owner cannot kick self")

	// ErrMemberNotFound is returned when the kick target is not a member.
	ErrMemberNotFound = errors.New("rooms: member not found")

	// ErrOwnerOffline is returned when the join request cannot reach
	// the room owner.
	ErrOwnerOffline = errors.New("rooms: room owner offline")

	// ErrNotJoined is returned when sending into a room this process
	// has not joined.
	ErrNotJoined = errors.New("rooms: room not joined")

	// ErrRoomNameRequired is returned when creating a room without a name.
	ErrRoomNameRequired = errors.New("rooms: room name required")

	// ErrRoomNameTooLong is returned when the room name exceeds 40 bytes.
	ErrRoomNameTooLong = errors.New("rooms: room name too long")

	// ErrPasswordTooShort is returned when a room password is set but
	// shorter than 4 bytes.
	ErrPasswordTooShort = errors.New("rooms: password too short")

	// ErrRoomIDCollision is returned when no free room id could be
	// allocated.
	ErrRoomIDCollision = errors.New("rooms: could not allocate room id")
)
