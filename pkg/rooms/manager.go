// Package rooms implements the room layer: a JSON-in-text control
// protocol carried over the encrypted pairwise channel.
//
// Rooms are owner-mediated: the creating peer is the sole authority
// over admission, membership and kicks. Other peers learn of rooms
// through ROOMCTL announces and keep shadow records that converge on
// the owner's room_members updates. Room state is process-local and
// dies with the owner.
package rooms

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/pion/logging"
)

// Room id sentinel for unscoped broadcast. Never materialized as a
// room record; sending to it fans raw plaintext out to every peer.
const BroadcastRoom = "all"

// Validation limits for locally created rooms.
const (
	MaxRoomNameBytes  = 40
	MinPasswordBytes  = 4
	DefaultMaxMembers = 12
	MinMaxMembers     = 2
	MaxMaxMembers     = 200
)

// maxEvents bounds the local event queue.
const maxEvents = 50

// Sender is the outbound half of the encrypted channel. Satisfied by
// *chat.Chat; swapped on interface switch via UpdateChat.
type Sender interface {
	SendToPeer(peerID, plaintext string) error
	SendToAll(plaintext string) int
}

// StoreFunc persists one message. direction is "in" or "out"; roomID
// is the room the message belongs to, or the peer id for direct
// messages. Nil disables persistence.
type StoreFunc func(direction, roomID, peerID, text string)

// Config configures a Manager.
type Config struct {
	// Identity supplies the local anon id. Required.
	Identity *identity.Identity

	// Chat sends control and room messages. May be nil until
	// UpdateChat; sends are skipped while unset.
	Chat Sender

	// Store persists messages. Optional.
	Store StoreFunc

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager owns the local room table, the event queue and the
// known-peer set used for new-peer re-announcement.
//
// Reentrant: public methods may be called from the ingress loop, the
// UI and the CLI concurrently. The internal protocol is mutate under
// the mutex, send outside it.
type Manager struct {
	identity *identity.Identity
	store    StoreFunc
	log      logging.LeveledLogger

	mu         sync.Mutex
	chat       Sender
	rooms      map[string]*room
	events     []Event
	knownPeers map[string]struct{}
}

// New creates a Manager with the given configuration.
func New(config Config) *Manager {
	m := &Manager{
		identity:   config.Identity,
		chat:       config.Chat,
		store:      config.Store,
		rooms:      make(map[string]*room),
		knownPeers: make(map[string]struct{}),
	}

	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("rooms")
	}

	return m
}

// UpdateChat rebinds the outbound channel after an interface switch.
func (m *Manager) UpdateChat(chat Sender) {
	m.mu.Lock()
	m.chat = chat
	m.mu.Unlock()
}

func (m *Manager) sender() Sender {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat
}

func (m *Manager) selfID() string {
	return m.identity.AnonID()
}

// storeMessage persists via the configured store, if any.
func (m *Manager) storeMessage(direction, roomID, peerID, text string) {
	if m.store != nil {
		m.store(direction, roomID, peerID, text)
	}
}

func (m *Manager) pushEvent(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	m.mu.Unlock()
}

// ConsumeEvents drains the event queue and returns the peer ids seen
// for the first time since the last call. The caller re-announces
// owned discoverable rooms to the new peers via AnnounceOwnedTo.
func (m *Manager) ConsumeEvents(peerIDs []string) (newPeers []string, events []Event) {
	m.mu.Lock()
	for _, id := range peerIDs {
		if _, known := m.knownPeers[id]; !known {
			m.knownPeers[id] = struct{}{}
			newPeers = append(newPeers, id)
		}
	}
	events = m.events
	m.events = nil
	m.mu.Unlock()
	return newPeers, events
}

// AnnounceOwnedTo announces every locally owned discoverable room to
// the given peers. Used for new-peer re-announcement so existing
// broadcasts stay O(rooms x new peers).
func (m *Manager) AnnounceOwnedTo(peerIDs []string) {
	m.mu.Lock()
	var infos []roomInfo
	for _, r := range m.rooms {
		if r.ownerID == m.selfID() && r.discoverable {
			infos = append(infos, r.info())
		}
	}
	m.mu.Unlock()

	for _, info := range infos {
		m.announce(info, peerIDs)
	}
}

// announce sends one room_announce. Nil peerIDs means broadcast to
// every known peer.
func (m *Manager) announce(info roomInfo, peerIDs []string) {
	chat := m.sender()
	if chat == nil {
		return
	}
	line, err := encodeCtl(announceFrame{Type: ctlAnnounce, Room: info})
	if err != nil {
		return
	}
	if peerIDs == nil {
		chat.SendToAll(line)
		return
	}
	for _, peerID := range peerIDs {
		if peerID == m.selfID() {
			continue
		}
		if err := chat.SendToPeer(peerID, line); err != nil && m.log != nil {
			m.log.Debugf("announce %s to %s failed: %v", info.ID, peerID, err)
		}
	}
}

// sendCtl sends one control frame to one peer.
func (m *Manager) sendCtl(peerID string, frame interface{}) error {
	chat := m.sender()
	if chat == nil {
		return ErrOwnerOffline
	}
	line, err := encodeCtl(frame)
	if err != nil {
		return err
	}
	return chat.SendToPeer(peerID, line)
}

// broadcastCtl sends one control frame to each listed peer, skipping
// self and unreachable peers.
func (m *Manager) broadcastCtl(peerIDs []string, frame interface{}) {
	for _, peerID := range peerIDs {
		if peerID == m.selfID() {
			continue
		}
		if err := m.sendCtl(peerID, frame); err != nil && m.log != nil {
			m.log.Debugf("control to %s failed: %v", peerID, err)
		}
	}
}

// HandleInbound routes one decrypted plaintext. It returns the text to
// surface to the user and whether anything should be surfaced: control
// frames are consumed silently, room messages come back prefixed with
// "[room <id>] ", everything else is a direct message stored verbatim.
func (m *Manager) HandleInbound(senderID, text string) (string, bool) {
	if strings.HasPrefix(text, ctlPrefix) {
		m.handleControl(senderID, text[len(ctlPrefix):])
		return "", false
	}
	if strings.HasPrefix(text, msgPrefix) {
		roomID, body, ok := m.handleRoomMessage(senderID, text)
		if !ok {
			return "", false
		}
		return "[room " + roomID + "] " + body, true
	}

	m.storeMessage("in", senderID, senderID, text)
	return text, true
}

// handleRoomMessage processes a ROOMMSG frame. An unknown room id
// materializes an ad-hoc local record owned by the sender; ownership
// claims are not authenticated.
func (m *Manager) handleRoomMessage(senderID, text string) (string, string, bool) {
	parts := strings.SplitN(text, "::", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	roomID := strings.TrimSpace(parts[1])
	body := parts[2]
	if roomID == "" {
		return "", "", false
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		r = &room{
			id:        roomID,
			name:      defaultRoomName(roomID),
			ownerID:   senderID,
			createdAt: nowUnix(),
		}
		m.rooms[roomID] = r
	}
	r.joined = true
	r.pending = false
	r.addMember(m.selfID())
	r.addMember(senderID)
	m.mu.Unlock()

	m.storeMessage("in", roomID, senderID, body)
	return roomID, body, true
}

// handleControl decodes and dispatches one ROOMCTL frame. Malformed
// JSON and unknown types are dropped.
func (m *Manager) handleControl(senderID, raw string) {
	var frame controlFrame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		if m.log != nil {
			m.log.Debugf("drop control from %s: %v", senderID, err)
		}
		return
	}

	switch frame.Type {
	case ctlAnnounce:
		m.handleAnnounce(senderID, frame.Room)
	case ctlJoin:
		m.handleJoin(senderID, frame.RoomID, frame.Password)
	case ctlJoinAck:
		m.handleJoinAck(senderID, frame)
	case ctlMembers:
		m.handleMembers(frame.RoomID, frame.Members)
	case ctlLeave:
		m.handleLeave(senderID, frame.RoomID)
	case ctlKick:
		m.handleKick(frame.RoomID, frame.Reason)
	default:
		if m.log != nil {
			m.log.Debugf("drop control from %s: unknown type %q", senderID, frame.Type)
		}
	}
}

// handleAnnounce inserts or refreshes a non-owned room record. The
// owner is always the frame's sender, whatever the payload claims.
func (m *Manager) handleAnnounce(senderID string, info *roomInfo) {
	if info == nil {
		return
	}
	roomID := strings.TrimSpace(info.ID)
	if roomID == "" {
		return
	}
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = defaultRoomName(roomID)
	}
	createdAt := info.CreatedAt
	if createdAt == 0 {
		createdAt = nowUnix()
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	isNew := !ok
	if !ok {
		r = &room{id: roomID}
		r.addMember(senderID)
		m.rooms[roomID] = r
	}
	r.name = name
	r.ownerID = senderID
	r.createdAt = createdAt
	r.maxMembers = info.MaxMembers
	r.locked = info.Locked
	r.discoverable = info.Discoverable
	if len(r.members) == 0 {
		r.addMember(senderID)
	}
	m.mu.Unlock()

	if isNew {
		m.pushEvent(Event{Type: EventDiscovered, RoomID: roomID, Name: name})
	}
}

// handleJoin runs the admission algorithm. Owner-only: requests for
// rooms this process does not own are dropped.
func (m *Manager) handleJoin(senderID, roomID, password string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok || r.ownerID != m.selfID() {
		m.mu.Unlock()
		return
	}

	admitted := true
	reason := ""
	switch {
	case r.maxMembers > 0 && len(r.members) >= r.maxMembers:
		admitted = false
		reason = "Room is full"
	case r.locked && (r.passwordHash == "" || r.passwordSalt == ""):
		admitted = false
		reason = "Room is locked"
	case r.locked && hashPassword(password, r.passwordSalt) != r.passwordHash:
		admitted = false
		reason = "Invalid password"
	}

	var members []string
	var info roomInfo
	if admitted {
		r.addMember(senderID)
		members = r.sortedMembers()
		info = r.info()
	}
	m.mu.Unlock()

	if !admitted {
		m.sendCtl(senderID, joinAckFrame{
			Type:   ctlJoinAck,
			RoomID: roomID,
			OK:     false,
			Reason: reason,
		})
		return
	}

	m.sendCtl(senderID, joinAckFrame{
		Type:    ctlJoinAck,
		RoomID:  roomID,
		OK:      true,
		Members: members,
		Room:    &info,
	})
	m.broadcastCtl(members, membersFrame{
		Type:    ctlMembers,
		RoomID:  roomID,
		Members: members,
	})
}

// handleJoinAck resolves a pending join on the candidate side.
func (m *Manager) handleJoinAck(senderID string, frame controlFrame) {
	roomID := strings.TrimSpace(frame.RoomID)
	if roomID == "" {
		return
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok && frame.Room != nil {
		r = &room{
			id:           roomID,
			name:         strings.TrimSpace(frame.Room.Name),
			ownerID:      frame.Room.OwnerID,
			createdAt:    frame.Room.CreatedAt,
			maxMembers:   frame.Room.MaxMembers,
			locked:       frame.Room.Locked,
			discoverable: frame.Room.Discoverable,
		}
		if r.name == "" {
			r.name = defaultRoomName(roomID)
		}
		if r.ownerID == "" {
			r.ownerID = senderID
		}
		if r.createdAt == 0 {
			r.createdAt = nowUnix()
		}
		m.rooms[roomID] = r
		ok = true
	}
	if !ok {
		m.mu.Unlock()
		return
	}

	name := r.name
	if frame.OK {
		r.joined = true
		r.pending = false
		r.setMembers(frame.Members)
		r.addMember(m.selfID())
		if frame.Room != nil {
			if n := strings.TrimSpace(frame.Room.Name); n != "" {
				r.name = n
			}
			if frame.Room.OwnerID != "" {
				r.ownerID = frame.Room.OwnerID
			}
			if frame.Room.CreatedAt != 0 {
				r.createdAt = frame.Room.CreatedAt
			}
			if frame.Room.MaxMembers != 0 {
				r.maxMembers = frame.Room.MaxMembers
			}
			r.locked = frame.Room.Locked
			r.discoverable = frame.Room.Discoverable
			name = r.name
		}
	} else {
		r.pending = false
	}
	m.mu.Unlock()

	if frame.OK {
		m.pushEvent(Event{Type: EventJoined, RoomID: roomID, Name: name})
		return
	}
	reason := frame.Reason
	if reason == "" {
		reason = "Join denied"
	}
	m.pushEvent(Event{Type: EventJoinDenied, RoomID: roomID, Name: name, Reason: reason})
}

// handleMembers syncs the membership list from the owner and
// recomputes the local joined flag.
func (m *Manager) handleMembers(roomID string, members []string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}

	m.mu.Lock()
	if r, ok := m.rooms[roomID]; ok {
		r.setMembers(members)
		r.joined = r.hasMember(m.selfID())
		r.pending = false
	}
	m.mu.Unlock()
}

// handleLeave removes a departing member. Owner-only.
func (m *Manager) handleLeave(senderID, roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok || r.ownerID != m.selfID() {
		m.mu.Unlock()
		return
	}
	r.removeMember(senderID)
	members := r.sortedMembers()
	m.mu.Unlock()

	m.broadcastCtl(members, membersFrame{
		Type:    ctlMembers,
		RoomID:  roomID,
		Members: members,
	})
}

// handleKick clears the local joined flag and surfaces the eviction.
func (m *Manager) handleKick(roomID, reason string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	r.joined = false
	r.pending = false
	r.removeMember(m.selfID())
	name := r.name
	m.mu.Unlock()

	if reason == "" {
		reason = "Removed from room"
	}
	m.pushEvent(Event{Type: EventKicked, RoomID: roomID, Name: name, Reason: reason})
}

// CreateRoom creates and, when discoverable, announces a locally owned
// room. A non-empty password locks the room.
func (m *Manager) CreateRoom(name, password string, discoverable bool, maxMembers int) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, ErrRoomNameRequired
	}
	if len(name) > MaxRoomNameBytes {
		return Snapshot{}, ErrRoomNameTooLong
	}
	if password != "" && len(password) < MinPasswordBytes {
		return Snapshot{}, ErrPasswordTooShort
	}
	if maxMembers == 0 {
		maxMembers = DefaultMaxMembers
	}
	if maxMembers < MinMaxMembers {
		maxMembers = MinMaxMembers
	}
	if maxMembers > MaxMaxMembers {
		maxMembers = MaxMaxMembers
	}

	locked := password != ""
	salt := ""
	hash := ""
	if locked {
		salt = randHex(8)
		hash = hashPassword(password, salt)
	}

	m.mu.Lock()
	roomID := ""
	for i := 0; i < 8; i++ {
		candidate := "room_" + randHex(4)
		if _, taken := m.rooms[candidate]; !taken {
			roomID = candidate
			break
		}
	}
	if roomID == "" {
		m.mu.Unlock()
		return Snapshot{}, ErrRoomIDCollision
	}

	r := &room{
		id:           roomID,
		name:         name,
		ownerID:      m.selfID(),
		createdAt:    nowUnix(),
		maxMembers:   maxMembers,
		locked:       locked,
		discoverable: discoverable,
		passwordHash: hash,
		passwordSalt: salt,
		joined:       true,
	}
	r.addMember(m.selfID())
	m.rooms[roomID] = r
	snap := r.snapshot(m.selfID())
	info := r.info()
	m.mu.Unlock()

	if discoverable {
		m.announce(info, nil)
	}
	return snap, nil
}

// JoinRoom requests admission from the room owner. The join completes
// asynchronously when the room_join_ack arrives; until then the room
// is marked pending.
func (m *Manager) JoinRoom(roomID, password string) error {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.ownerID == m.selfID() || r.joined {
		r.joined = true
		r.pending = false
		m.mu.Unlock()
		return nil
	}
	r.pending = true
	ownerID := r.ownerID
	m.mu.Unlock()

	err := m.sendCtl(ownerID, joinFrame{
		Type:     ctlJoin,
		RoomID:   roomID,
		Password: password,
	})
	if err != nil {
		m.mu.Lock()
		if r, ok := m.rooms[roomID]; ok {
			r.pending = false
		}
		m.mu.Unlock()
		return ErrOwnerOffline
	}
	return nil
}

// LeaveRoom leaves a joined room and notifies the owner. The owner
// cannot leave its own room.
func (m *Manager) LeaveRoom(roomID string) error {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.ownerID == m.selfID() {
		m.mu.Unlock()
		return ErrOwnerCannotLeave
	}
	r.joined = false
	r.pending = false
	r.removeMember(m.selfID())
	ownerID := r.ownerID
	m.mu.Unlock()

	if err := m.sendCtl(ownerID, leaveFrame{Type: ctlLeave, RoomID: roomID}); err != nil {
		if m.log != nil {
			m.log.Debugf("leave notify for %s failed: %v", roomID, err)
		}
	}
	return nil
}

// KickMember evicts a member from an owned room: the remaining members
// get a room_members update, the victim a room_kick.
func (m *Manager) KickMember(roomID, memberID string) error {
	if memberID == "" {
		return ErrMemberNotFound
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	if r.ownerID != m.selfID() {
		m.mu.Unlock()
		return ErrNotOwner
	}
	if memberID == m.selfID() {
		m.mu.Unlock()
		return ErrCannotKickSelf
	}
	if !r.hasMember(memberID) {
		m.mu.Unlock()
		return ErrMemberNotFound
	}
	r.removeMember(memberID)
	members := r.sortedMembers()
	m.mu.Unlock()

	m.broadcastCtl(members, membersFrame{
		Type:    ctlMembers,
		RoomID:  roomID,
		Members: members,
	})
	if err := m.sendCtl(memberID, kickFrame{Type: ctlKick, RoomID: roomID}); err != nil {
		if m.log != nil {
			m.log.Debugf("kick notify for %s failed: %v", memberID, err)
		}
	}
	return nil
}

// SendRoomMessage fans a message out to the room members, excluding
// self. The "all" sentinel broadcasts raw plaintext to every peer.
func (m *Manager) SendRoomMessage(roomID, text string) error {
	if roomID == BroadcastRoom {
		chat := m.sender()
		if chat == nil {
			return ErrOwnerOffline
		}
		chat.SendToAll(text)
		m.storeMessage("out", BroadcastRoom, m.selfID(), text)
		return nil
	}

	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	if !r.joined && r.ownerID != m.selfID() {
		m.mu.Unlock()
		return ErrNotJoined
	}
	var recipients []string
	for id := range r.members {
		if id != m.selfID() {
			recipients = append(recipients, id)
		}
	}
	m.mu.Unlock()

	line := encodeMsg(roomID, text)
	chat := m.sender()
	for _, peerID := range recipients {
		if chat == nil {
			break
		}
		if err := chat.SendToPeer(peerID, line); err != nil && m.log != nil {
			m.log.Debugf("room %s to %s failed: %v", roomID, peerID, err)
		}
	}
	m.storeMessage("out", roomID, m.selfID(), text)
	return nil
}

// Rooms returns snapshots of every known room, oldest first.
func (m *Manager) Rooms() []Snapshot {
	m.mu.Lock()
	out := make([]Snapshot, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.snapshot(m.selfID()))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Room returns a snapshot of one room.
func (m *Manager) Room(roomID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	return r.snapshot(m.selfID()), true
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

func randHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func defaultRoomName(roomID string) string {
	short := roomID
	if len(short) > 6 {
		short = short[:6]
	}
	return "Room " + short
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
