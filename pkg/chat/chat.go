// Package chat is the pairwise encrypted message channel.
//
// Chat owns no socket: it registers itself as Discovery's ENC handler
// and shares the ingress loop. Outbound, it resolves the peer in the
// discovery snapshot, registers the advertised key with the crypto box
// (idempotent) and sends one ENC frame. Delivery is at-most-once and
// unordered; there is no retransmission or acknowledgment.
package chat

import (
	"sync"

	"github.com/anonchat/anonchat/pkg/cryptobox"
	"github.com/anonchat/anonchat/pkg/discovery"
	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/anonchat/anonchat/pkg/transport"
	"github.com/pion/logging"
)

// OnMessage receives decrypted inbound plaintext.
type OnMessage func(senderID, plaintext string)

// Config configures a Chat.
type Config struct {
	// Transport sends outbound ENC frames. Required; not owned.
	Transport *transport.Endpoint

	// Discovery supplies the peer snapshot and the ingress path. Required.
	Discovery *discovery.Discovery

	// Identity supplies the local id and crypto box. Required.
	Identity *identity.Identity

	// Port is the UDP port peers listen on (default: transport.DefaultPort).
	Port int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Chat encrypts and decrypts application payloads over the peer table.
type Chat struct {
	transport *transport.Endpoint
	discovery *discovery.Discovery
	identity  *identity.Identity
	port      int
	log       logging.LeveledLogger

	mu        sync.RWMutex
	running   bool
	onMessage OnMessage
}

// New creates a Chat with the given configuration.
func New(config Config) *Chat {
	if config.Port == 0 {
		config.Port = transport.DefaultPort
	}

	c := &Chat{
		transport: config.Transport,
		discovery: config.Discovery,
		identity:  config.Identity,
		port:      config.Port,
	}

	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("chat")
	}

	return c
}

// Start registers the ENC handler on Discovery and begins delivering
// decrypted messages to onMessage.
func (c *Chat) Start(onMessage OnMessage) {
	c.mu.Lock()
	c.onMessage = onMessage
	c.running = true
	c.mu.Unlock()

	c.discovery.SetEncHandler(c.handleEnc)
}

// Stop unregisters the ENC handler. Inbound frames are dropped afterwards.
func (c *Chat) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.discovery.SetEncHandler(nil)
}

// SendToPeer encrypts plaintext for one peer and sends it.
// Returns ErrUnknownPeer when the peer is not in the current snapshot.
func (c *Chat) SendToPeer(peerID, plaintext string) error {
	peer, ok := c.discovery.GetPeers()[peerID]
	if !ok {
		return ErrUnknownPeer
	}

	// No-op if the peer key is already bound.
	if err := c.identity.Box().RegisterPeer(peerID, peer.PublicKey); err != nil {
		return err
	}

	blob, err := c.identity.Box().Encrypt(peerID, plaintext)
	if err != nil {
		return err
	}

	frame := discovery.FrameEnc + " " + c.identity.AnonID() + " " + blob
	return c.transport.Send(frame, peer.IP, c.port)
}

// SendToAll unicasts plaintext to every peer in the snapshot and
// returns the number of successful sends. A peer lost to an expiry
// race is skipped, not fatal.
func (c *Chat) SendToAll(plaintext string) int {
	count := 0
	for peerID := range c.discovery.GetPeers() {
		if err := c.SendToPeer(peerID, plaintext); err != nil {
			if c.log != nil {
				c.log.Debugf("broadcast to %s failed: %v", peerID, err)
			}
			continue
		}
		count++
	}
	return count
}

// handleEnc is installed as Discovery's ENC handler.
func (c *Chat) handleEnc(senderID, blob, srcIP string) {
	c.mu.RLock()
	running := c.running
	onMessage := c.onMessage
	c.mu.RUnlock()

	if !running {
		return
	}
	if senderID == c.identity.AnonID() {
		return
	}

	// Unknown senders are dropped before any crypto work, so
	// unattributable cryptograms cannot consume resources.
	peer, ok := c.discovery.GetPeers()[senderID]
	if !ok {
		if c.log != nil {
			c.log.Debugf("drop ENC from %s (%s): unknown peer", senderID, srcIP)
		}
		return
	}

	if err := c.identity.Box().RegisterPeer(senderID, peer.PublicKey); err != nil {
		if c.log != nil {
			c.log.Debugf("drop ENC from %s (%s): %v", senderID, srcIP, err)
		}
		return
	}

	plaintext, err := c.identity.Box().Decrypt(senderID, blob)
	if err != nil {
		// Adversary path: tampered or wrong-key frames vanish silently.
		if err != cryptobox.ErrDecrypt && c.log != nil {
			c.log.Debugf("drop ENC from %s (%s): %v", senderID, srcIP, err)
		}
		return
	}

	if onMessage != nil {
		onMessage(senderID, plaintext)
	}
}
