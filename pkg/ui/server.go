// Package ui exposes the node state over a small JSON HTTP API. It is
// a thin layer: no transport, no crypto, no room logic of its own.
package ui

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anonchat/anonchat/pkg/anonchat"
	"github.com/anonchat/anonchat/pkg/chat"
	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/anonchat/anonchat/pkg/netutil"
	"github.com/anonchat/anonchat/pkg/rooms"
	"github.com/anonchat/anonchat/pkg/store"
	"github.com/pion/logging"
)

// Config configures a Server.
type Config struct {
	// Node is the runtime to expose. Required.
	Node *anonchat.Node

	// Host and Port are the bind address (default: 127.0.0.1:5000).
	Host string
	Port int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Server serves the JSON API.
type Server struct {
	node *anonchat.Node
	host string
	port int
	log  logging.LeveledLogger

	httpServer *http.Server
	listener   net.Listener
}

// New creates an unstarted Server.
func New(config Config) *Server {
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Port == 0 {
		config.Port = 5000
	}

	s := &Server{
		node: config.Node,
		host: config.Host,
		port: config.Port,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("ui")
	}

	s.httpServer = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/send", s.handleSend)
	mux.HandleFunc("/api/nickname", s.handleNickname)
	mux.HandleFunc("/api/interfaces", s.handleInterfaces)
	mux.HandleFunc("/api/interface", s.handleSetInterface)
	mux.HandleFunc("/api/rooms", s.handleCreateRoom)
	mux.HandleFunc("/api/rooms/join", s.handleJoinRoom)
	mux.HandleFunc("/api/rooms/leave", s.handleLeaveRoom)
	mux.HandleFunc("/api/rooms/kick", s.handleKickMember)

	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return err
	}
	s.listener = ln

	if s.log != nil {
		s.log.Infof("ui listening on %s", ln.Addr())
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.Warnf("ui server: %v", err)
			}
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the server.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody tolerates missing and malformed bodies the way the
// routes always have: they behave as an empty request.
func decodeBody(r *http.Request, v interface{}) {
	if r.Body == nil {
		return
	}
	json.NewDecoder(r.Body).Decode(v)
}

// messageJSON is the wire form of one stored message.
type messageJSON struct {
	ID        int64   `json:"id"`
	Direction string  `json:"direction"`
	Room      string  `json:"room"`
	PeerID    string  `json:"peer_id"`
	Text      string  `json:"text"`
	TS        float64 `json:"ts"`
	ISO       string  `json:"iso"`
}

func serializeMessages(msgs []store.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			ID:        m.ID,
			Direction: m.Direction,
			Room:      m.Room,
			PeerID:    m.PeerID,
			Text:      m.Text,
			TS:        float64(m.TS.UnixNano()) / float64(time.Second),
			ISO:       m.TS.Format("2006-01-02 15:04:05"),
		})
	}
	return out
}

// GET /api/state?after=<id>&room=<room>
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	afterID, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil {
		afterID = 0
	}
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	if room == "" {
		room = store.AllRooms
	}

	msgs, err := s.node.Store().MessagesSince(afterID, room)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	state := s.node.PollState()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"me": map[string]string{
			"id":       state.Me.ID,
			"name":     state.Me.Name,
			"nickname": state.Me.Nickname,
		},
		"rooms":       state.Rooms,
		"peers":       state.Peers,
		"messages":    serializeMessages(msgs),
		"room_events": state.RoomEvents,
		"interface": map[string]string{
			"current": state.InterfaceIP,
		},
	})
}

// POST /api/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Room string `json:"room"`
		Text string `json:"text"`
	}
	decodeBody(r, &req)

	room := strings.TrimSpace(req.Room)
	if room == "" {
		room = rooms.BroadcastRoom
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "Message is empty")
		return
	}

	sent, err := s.node.Send(room, text)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "sent": sent})
	case anonchat.ErrNotStarted:
		writeError(w, http.StatusServiceUnavailable, "Chat not ready")
	case rooms.ErrNotJoined:
		writeError(w, http.StatusForbidden, "Join the room before sending")
	case chat.ErrUnknownPeer:
		writeError(w, http.StatusBadRequest, "Unknown peer: "+room)
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// POST /api/nickname
func (s *Server) handleNickname(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Nickname string `json:"nickname"`
	}
	decodeBody(r, &req)

	if err := s.node.SetNickname(strings.TrimSpace(req.Nickname)); err != nil {
		if err == identity.ErrNicknameTooLong {
			writeError(w, http.StatusBadRequest, "Nickname too long (max 32)")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := s.node.Identity()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"name":     id.DisplayName(),
		"nickname": id.Nickname(),
	})
}

// GET /api/interfaces
func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ifaces, err := netutil.ListIPv4Interfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "interface enumeration failed")
		return
	}
	if ifaces == nil {
		ifaces = []netutil.Interface{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"interfaces": ifaces})
}

// POST /api/interface
func (s *Server) handleSetInterface(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		IP string `json:"ip"`
	}
	decodeBody(r, &req)

	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		writeError(w, http.StatusBadRequest, "Missing ip")
		return
	}

	if err := s.node.SwitchInterface(ip); err != nil {
		if s.log != nil {
			s.log.Warnf("interface switch to %s: %v", ip, err)
		}
		writeError(w, http.StatusInternalServerError, "Failed to switch interface")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "ip": ip})
}

// POST /api/rooms
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req := struct {
		Name         string `json:"name"`
		Password     string `json:"password"`
		Discoverable *bool  `json:"discoverable"`
		MaxMembers   int    `json:"max_members"`
	}{}
	decodeBody(r, &req)

	discoverable := true
	if req.Discoverable != nil {
		discoverable = *req.Discoverable
	}

	snap, err := s.node.RoomManager().CreateRoom(req.Name, req.Password, discoverable, req.MaxMembers)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "room": snap})
	case rooms.ErrRoomNameRequired:
		writeError(w, http.StatusBadRequest, "Room name required")
	case rooms.ErrRoomNameTooLong:
		writeError(w, http.StatusBadRequest, "Room name too long (max 40)")
	case rooms.ErrPasswordTooShort:
		writeError(w, http.StatusBadRequest, "Password too short (min 4)")
	default:
		writeError(w, http.StatusInternalServerError, "Room creation failed")
	}
}

// POST /api/rooms/join
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		RoomID   string `json:"room_id"`
		Password string `json:"password"`
	}
	decodeBody(r, &req)

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "Missing room id")
		return
	}

	switch err := s.node.RoomManager().JoinRoom(roomID, req.Password); err {
	case nil:
	case rooms.ErrRoomNotFound:
		writeError(w, http.StatusNotFound, "Room not found")
		return
	case rooms.ErrOwnerOffline:
		writeError(w, http.StatusBadRequest, "Room owner offline")
		return
	default:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := map[string]interface{}{"ok": true}
	if snap, ok := s.node.RoomManager().Room(roomID); ok && snap.Joined {
		resp["room"] = snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/rooms/leave
func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		RoomID string `json:"room_id"`
	}
	decodeBody(r, &req)

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "Missing room id")
		return
	}

	switch err := s.node.RoomManager().LeaveRoom(roomID); err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	case rooms.ErrRoomNotFound:
		writeError(w, http.StatusNotFound, "Room not found")
	case rooms.ErrOwnerCannotLeave:
		writeError(w, http.StatusBadRequest, "Owner cannot leave the room")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// POST /api/rooms/kick
func (s *Server) handleKickMember(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		RoomID   string `json:"room_id"`
		MemberID string `json:"member_id"`
	}
	decodeBody(r, &req)

	roomID := strings.TrimSpace(req.RoomID)
	memberID := strings.TrimSpace(req.MemberID)
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "Missing room id")
		return
	}
	if memberID == "" {
		writeError(w, http.StatusBadRequest, "Missing member id")
		return
	}

	switch err := s.node.RoomManager().KickMember(roomID, memberID); err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	case rooms.ErrRoomNotFound:
		writeError(w, http.StatusNotFound, "Room not found")
	case rooms.ErrNotOwner:
		writeError(w, http.StatusForbidden, "Only the owner can kick members")
	case rooms.ErrCannotKickSelf:
		writeError(w, http.StatusBadRequest, "Owner cannot kick self")
	case rooms.ErrMemberNotFound:
		writeError(w, http.StatusNotFound, "Member not found")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
