// Package discovery maintains the LAN peer table.
//
// Every GMInterval the Discovery beacons a GM frame (and a NICK frame
// when a nickname is set) to the broadcast address. Inbound datagrams
// are demultiplexed by frame type: presence frames refresh the peer
// table, NICK frames update nicknames of known peers, and ENC frames
// are handed to the registered encrypted-frame handler without
// touching the table. Entries expire after PeerTimeout without a
// refresh.
package discovery

import (
	"sync"
	"time"

	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/anonchat/anonchat/pkg/transport"
	"github.com/pion/logging"
)

// Timing defaults.
const (
	// GMInterval is the beacon period.
	GMInterval = 3 * time.Second

	// PeerTimeout is the age after which a peer entry expires.
	PeerTimeout = 10 * time.Second
)

// Peer is one peer-table entry.
type Peer struct {
	ID        string
	IP        string
	LastSeen  time.Time
	PublicKey string
	Nickname  string
}

// EncHandler receives inbound ENC frames: the claimed sender id, the
// ciphertext token and the datagram source address.
type EncHandler func(senderID, blob, srcIP string)

// Config configures a Discovery.
type Config struct {
	// Transport is the endpoint to beacon and listen on. Required.
	// The Discovery does not own it and never closes it.
	Transport *transport.Endpoint

	// Identity supplies the local id, public key and nickname. Required.
	Identity *identity.Identity

	// BroadcastIP is the beacon target address (default: 255.255.255.255).
	BroadcastIP string

	// Port is the UDP port peers listen on (default: transport.DefaultPort).
	Port int

	// Interval overrides GMInterval (tests).
	Interval time.Duration

	// Timeout overrides PeerTimeout (tests).
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Discovery advertises the local identity and tracks peers.
type Discovery struct {
	transport *transport.Endpoint
	identity  *identity.Identity
	broadcast string
	port      int
	interval  time.Duration
	timeout   time.Duration
	log       logging.LeveledLogger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu         sync.RWMutex
	peers      map[string]Peer
	encHandler EncHandler
	started    bool
	stopped    bool
}

// New creates a Discovery with the given configuration.
func New(config Config) *Discovery {
	if config.BroadcastIP == "" {
		config.BroadcastIP = "255.255.255.255"
	}
	if config.Port == 0 {
		config.Port = transport.DefaultPort
	}
	if config.Interval == 0 {
		config.Interval = GMInterval
	}
	if config.Timeout == 0 {
		config.Timeout = PeerTimeout
	}

	d := &Discovery{
		transport: config.Transport,
		identity:  config.Identity,
		broadcast: config.BroadcastIP,
		port:      config.Port,
		interval:  config.Interval,
		timeout:   config.Timeout,
		stopCh:    make(chan struct{}),
		peers:     make(map[string]Peer),
	}

	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("discovery")
	}

	return d
}

// SetEncHandler registers the callback for inbound ENC frames.
// Pass nil to unregister; unhandled ENC frames are dropped.
func (d *Discovery) SetEncHandler(h EncHandler) {
	d.mu.Lock()
	d.encHandler = h
	d.mu.Unlock()
}

// Start launches the beacon and ingress loops.
func (d *Discovery) Start() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrClosed
	}
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.started = true
	d.mu.Unlock()

	if d.log != nil {
		d.log.Infof("starting discovery as %s, beaconing to %s:%d", d.identity.AnonID(), d.broadcast, d.port)
	}

	d.wg.Add(2)
	go d.broadcastLoop()
	go d.listenLoop()

	return nil
}

// Stop signals both loops to exit. The ingress loop is blocked in
// transport Recv; it unwinds once the owner closes the transport, so
// the teardown order is chat, discovery, transport.
func (d *Discovery) Stop() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrNotStarted
	}
	if d.stopped {
		d.mu.Unlock()
		return ErrClosed
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.stopCh)

	if d.log != nil {
		d.log.Info("stopping discovery")
	}
	return nil
}

// Wait blocks until both loops have exited. Call after Stop and after
// closing the transport.
func (d *Discovery) Wait() {
	d.wg.Wait()
}

// GetPeers sweeps expired entries and returns a snapshot of the table.
func (d *Discovery) GetPeers() map[string]Peer {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sweepLocked()

	snapshot := make(map[string]Peer, len(d.peers))
	for id, p := range d.peers {
		snapshot[id] = p
	}
	return snapshot
}

// broadcastLoop beacons presence every interval.
func (d *Discovery) broadcastLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// First beacon immediately rather than one interval in.
	d.beacon()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.beacon()
		}
	}
}

func (d *Discovery) beacon() {
	nick := d.identity.Nickname()
	gm := FrameGM + " " + d.identity.AnonID() + " " + presencePayload(d.identity.Box().PublicKeyB64(), nick)

	// Send failures are swallowed; the next tick retries.
	if err := d.transport.Send(gm, d.broadcast, d.port); err != nil {
		if d.log != nil {
			d.log.Warnf("beacon failed: %v", err)
		}
		return
	}

	if nick != "" {
		nickMsg := FrameNick + " " + d.identity.AnonID() + " " + encodeNick(nick)
		if err := d.transport.Send(nickMsg, d.broadcast, d.port); err != nil && d.log != nil {
			d.log.Warnf("nick beacon failed: %v", err)
		}
	}
}

// listenLoop reads datagrams until the transport closes.
func (d *Discovery) listenLoop() {
	defer d.wg.Done()

	for {
		msg, srcIP, _, err := d.transport.Recv()
		if err != nil {
			if err == transport.ErrClosed {
				return
			}
			select {
			case <-d.stopCh:
				return
			default:
			}
			if d.log != nil {
				d.log.Warnf("recv error: %v", err)
			}
			continue
		}

		d.handleDatagram(msg, srcIP)
	}
}

func (d *Discovery) handleDatagram(msg, srcIP string) {
	frameType, peerID, payload, ok := parseFrame(msg)
	if !ok {
		if d.log != nil {
			d.log.Debugf("drop malformed datagram from %s", srcIP)
		}
		return
	}

	if frameType == FrameEnc {
		d.mu.RLock()
		handler := d.encHandler
		d.mu.RUnlock()
		if handler != nil {
			handler(peerID, payload, srcIP)
		} else if d.log != nil {
			d.log.Debugf("drop ENC from %s: no handler", peerID)
		}
		d.mu.Lock()
		d.sweepLocked()
		d.mu.Unlock()
		return
	}

	// Loopback suppression.
	if peerID == d.identity.AnonID() {
		return
	}

	now := time.Now()

	switch frameType {
	case FrameGM, FrameGMAck:
		pubKey, nick := parsePresence(payload)

		d.mu.Lock()
		existing, known := d.peers[peerID]
		if nick == "" && known {
			nick = existing.Nickname
		}
		d.peers[peerID] = Peer{
			ID:        peerID,
			IP:        srcIP,
			LastSeen:  now,
			PublicKey: pubKey,
			Nickname:  nick,
		}
		d.sweepLocked()
		d.mu.Unlock()

		if frameType == FrameGM {
			ack := FrameGMAck + " " + d.identity.AnonID() + " " + presencePayload(d.identity.Box().PublicKeyB64(), d.identity.Nickname())
			if err := d.transport.Send(ack, srcIP, d.port); err != nil && d.log != nil {
				d.log.Warnf("ack to %s failed: %v", srcIP, err)
			}
		}

	case FrameNick:
		d.mu.Lock()
		if existing, known := d.peers[peerID]; known {
			existing.Nickname = decodeNick(payload)
			existing.LastSeen = now
			d.peers[peerID] = existing
		}
		d.sweepLocked()
		d.mu.Unlock()

	default:
		if d.log != nil {
			d.log.Debugf("drop unknown frame type %q from %s", frameType, srcIP)
		}
	}
}

// sweepLocked removes entries older than the timeout. Callers hold d.mu.
func (d *Discovery) sweepLocked() {
	cutoff := time.Now().Add(-d.timeout)
	for id, p := range d.peers {
		if p.LastSeen.Before(cutoff) {
			delete(d.peers, id)
		}
	}
}
