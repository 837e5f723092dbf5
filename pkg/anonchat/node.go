// Package anonchat wires the protocol layers into a runnable node:
// one transport, discovery and chat stack plus the room manager and
// the message store. The stack is rebuilt in place when the bind
// interface changes; identity, rooms and stored messages survive the
// switch.
package anonchat

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anonchat/anonchat/pkg/chat"
	"github.com/anonchat/anonchat/pkg/config"
	"github.com/anonchat/anonchat/pkg/discovery"
	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/anonchat/anonchat/pkg/netutil"
	"github.com/anonchat/anonchat/pkg/rooms"
	"github.com/anonchat/anonchat/pkg/store"
	"github.com/anonchat/anonchat/pkg/transport"
	"github.com/pion/logging"
)

// logLines bounds the in-memory log ring served to the CLI.
const logLines = 200

// OnDisplay receives user-visible inbound messages. Room messages
// arrive prefixed with "[room <id>] ".
type OnDisplay func(senderID, text string)

// Config configures a Node.
type Config struct {
	// Settings is the resolved runtime configuration.
	Settings config.Settings

	// OnDisplay is called for every surfaced inbound message. Optional.
	OnDisplay OnDisplay

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// stack is the rebuildable network half of the node.
type stack struct {
	transport *transport.Endpoint
	discovery *discovery.Discovery
	chat      *chat.Chat
}

// Node is the top-level runtime.
type Node struct {
	settings      config.Settings
	identity      *identity.Identity
	store         store.Store
	rooms         *rooms.Manager
	onDisplay     OnDisplay
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	mu        sync.Mutex
	stack     *stack
	currentIP string
	started   bool

	logMu   sync.Mutex
	logRing []string
}

// New builds an unstarted node: identity, store and room manager are
// live, the network stack is not.
func New(cfg Config) (*Node, error) {
	id, err := identity.New(cfg.Settings.Nickname)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if cfg.Settings.DBPath != "" {
		st, err = store.NewSQLiteStore(cfg.Settings.DBPath)
		if err != nil {
			return nil, err
		}
	} else {
		st = store.NewMemoryStore()
	}

	n := &Node{
		settings:      cfg.Settings,
		identity:      id,
		store:         st,
		onDisplay:     cfg.OnDisplay,
		loggerFactory: cfg.LoggerFactory,
	}
	if cfg.LoggerFactory != nil {
		n.log = cfg.LoggerFactory.NewLogger("node")
	}

	n.rooms = rooms.New(rooms.Config{
		Identity:      id,
		Store:         n.storeMessage,
		LoggerFactory: cfg.LoggerFactory,
	})

	ip := cfg.Settings.InterfaceIP
	if ip == "" {
		ip, err = netutil.DefaultInterfaceIP()
		if err != nil {
			st.Close()
			return nil, err
		}
	}
	n.currentIP = ip

	return n, nil
}

func (n *Node) storeMessage(direction, roomID, peerID, text string) {
	if _, err := n.store.Add(direction, roomID, peerID, text); err != nil && n.log != nil {
		n.log.Warnf("store message: %v", err)
	}
}

// Start brings the network stack up on the current interface.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}

	s, err := n.buildStack(n.currentIP)
	if err != nil {
		return err
	}
	n.stack = s
	n.started = true
	n.recordLog(fmt.Sprintf("Using interface IP: %s", n.currentIP))
	return nil
}

// Stop tears the network stack down and closes the store.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return ErrNotStarted
	}
	n.started = false
	s := n.stack
	n.stack = nil
	n.mu.Unlock()

	n.stopStack(s)
	return n.store.Close()
}

// buildStack constructs and starts transport, discovery and chat on
// the given bind IP.
func (n *Node) buildStack(ip string) (*stack, error) {
	ep, err := transport.New(transport.Config{
		BindIP:        ip,
		Port:          n.settings.Port,
		Broadcast:     true,
		LoggerFactory: n.loggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", ip, err)
	}

	d := discovery.New(discovery.Config{
		Transport:     ep,
		Identity:      n.identity,
		BroadcastIP:   n.settings.BroadcastIP,
		Port:          n.settings.Port,
		LoggerFactory: n.loggerFactory,
	})
	c := chat.New(chat.Config{
		Transport:     ep,
		Discovery:     d,
		Identity:      n.identity,
		Port:          n.settings.Port,
		LoggerFactory: n.loggerFactory,
	})

	if err := d.Start(); err != nil {
		ep.Close()
		return nil, err
	}
	c.Start(n.handleMessage)
	n.rooms.UpdateChat(c)

	return &stack{transport: ep, discovery: d, chat: c}, nil
}

// stopStack tears one stack down: chat, discovery, transport, in that
// order, then waits for the ingress loop to drain.
func (n *Node) stopStack(s *stack) {
	if s == nil {
		return
	}
	s.chat.Stop()
	s.discovery.Stop()
	s.transport.Close()
	s.discovery.Wait()
}

// handleMessage is the chat callback: route through the room layer,
// log and surface what remains.
func (n *Node) handleMessage(senderID, plaintext string) {
	display, surface := n.rooms.HandleInbound(senderID, plaintext)
	if !surface {
		return
	}
	n.recordLog(fmt.Sprintf("[%s] %s", senderID, display))
	if n.onDisplay != nil {
		n.onDisplay(senderID, display)
	}
}

// SwitchInterface rebinds the network stack to another local IP.
// Identity, rooms and the store carry over; the peer table starts
// empty on the new interface.
func (n *Node) SwitchInterface(newIP string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return ErrNotStarted
	}
	if newIP == n.currentIP {
		return nil
	}

	n.recordLog(fmt.Sprintf("Switching interface to %s", newIP))
	n.stopStack(n.stack)
	n.stack = nil

	s, err := n.buildStack(newIP)
	if err != nil {
		return err
	}
	n.stack = s
	n.currentIP = newIP
	n.recordLog(fmt.Sprintf("Interface switched to %s", newIP))
	return nil
}

// CurrentIP returns the bind IP of the running stack.
func (n *Node) CurrentIP() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentIP
}

// Identity returns the node identity.
func (n *Node) Identity() *identity.Identity {
	return n.identity
}

// Store returns the message store.
func (n *Node) Store() store.Store {
	return n.store
}

// RoomManager returns the room layer.
func (n *Node) RoomManager() *rooms.Manager {
	return n.rooms
}

func (n *Node) currentStack() *stack {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stack
}

// PeerInfo is one discovered peer, serialized for the UI.
type PeerInfo struct {
	ID       string  `json:"id"`
	IP       string  `json:"ip"`
	Nickname string  `json:"nickname,omitempty"`
	LastSeen float64 `json:"last_seen"`
}

// Peers returns the current peer snapshot, sorted by id.
func (n *Node) Peers() []PeerInfo {
	s := n.currentStack()
	if s == nil {
		return nil
	}

	peers := s.discovery.GetPeers()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerInfo{
			ID:       p.ID,
			IP:       p.IP,
			Nickname: p.Nickname,
			LastSeen: float64(p.LastSeen.UnixNano()) / float64(time.Second),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Me describes the local identity for the UI.
type Me struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

// State is one poll result.
type State struct {
	Me          Me               `json:"me"`
	Peers       []PeerInfo       `json:"peers"`
	Rooms       []rooms.Snapshot `json:"rooms"`
	RoomEvents  []rooms.Event    `json:"room_events"`
	InterfaceIP string           `json:"interface_ip"`
}

// PollState snapshots peers, rooms and pending room events. Peers
// seen for the first time get every owned discoverable room
// re-announced, so late joiners learn about existing rooms without
// re-flooding on each poll.
func (n *Node) PollState() State {
	peers := n.Peers()
	peerIDs := make([]string, len(peers))
	for i, p := range peers {
		peerIDs[i] = p.ID
	}

	newPeers, events := n.rooms.ConsumeEvents(peerIDs)
	if len(newPeers) > 0 {
		n.rooms.AnnounceOwnedTo(newPeers)
	}

	return State{
		Me: Me{
			ID:       n.identity.AnonID(),
			Name:     n.identity.DisplayName(),
			Nickname: n.identity.Nickname(),
		},
		Peers:       peers,
		Rooms:       n.rooms.Rooms(),
		RoomEvents:  events,
		InterfaceIP: n.CurrentIP(),
	}
}

// Send routes one outbound message: "all" broadcasts raw plaintext to
// every peer, a known room id fans out through the room layer, and
// anything else is treated as a peer id for a direct message. Returns
// the number of peers the message went to.
func (n *Node) Send(room, text string) (int, error) {
	s := n.currentStack()
	if s == nil {
		return 0, ErrNotStarted
	}

	if room == rooms.BroadcastRoom {
		sent := s.chat.SendToAll(text)
		n.storeMessage(store.DirOut, rooms.BroadcastRoom, rooms.BroadcastRoom, text)
		return sent, nil
	}

	if snap, ok := n.rooms.Room(room); ok {
		if err := n.rooms.SendRoomMessage(room, text); err != nil {
			return 0, err
		}
		return snap.MemberCount - 1, nil
	}

	if err := s.chat.SendToPeer(room, text); err != nil {
		return 0, err
	}
	n.storeMessage(store.DirOut, room, room, text)
	return 1, nil
}

// SetNickname validates and updates the advertised nickname. Peers
// pick it up on the next presence beacon.
func (n *Node) SetNickname(nickname string) error {
	return n.identity.SetNickname(nickname)
}

// recordLog appends one timestamped line to the bounded log ring.
func (n *Node) recordLog(message string) {
	line := time.Now().Format("15:04:05") + " " + message
	n.logMu.Lock()
	n.logRing = append(n.logRing, line)
	if len(n.logRing) > logLines {
		n.logRing = n.logRing[len(n.logRing)-logLines:]
	}
	n.logMu.Unlock()
	if n.log != nil {
		n.log.Infof("%s", message)
	}
}

// Logs returns a copy of the recent log lines, oldest first.
func (n *Node) Logs() []string {
	n.logMu.Lock()
	defer n.logMu.Unlock()
	return append([]string(nil), n.logRing...)
}
