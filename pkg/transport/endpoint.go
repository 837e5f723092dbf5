// Package transport provides the unreliable datagram endpoint the rest
// of the stack runs on: UTF-8 text datagrams over UDP, bound to one
// selected local IPv4 address.
//
// Binding to a chosen interface rather than the wildcard lets a host
// with several interfaces control which L2 segment receives broadcasts,
// which the interface-switch operation relies on.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the default anonchat UDP port.
const DefaultPort = 54545

// MaxDatagramSize is the receive buffer size and outbound size cap.
const MaxDatagramSize = 4096

// Config configures an Endpoint.
type Config struct {
	// BindIP is the local IPv4 address to bind. Empty binds the wildcard
	// address (tests only; production callers select an interface).
	BindIP string

	// Port is the UDP port to bind (default: 54545).
	Port int

	// Broadcast enables SO_BROADCAST on the socket.
	Broadcast bool

	// Conn is an optional pre-existing PacketConn to use.
	// If set, BindIP/Port/Broadcast are ignored.
	Conn net.PacketConn

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Endpoint is a UDP endpoint carrying UTF-8 text datagrams.
// Send and Recv are safe for concurrent use; Close is idempotent and
// unblocks an in-flight Recv.
type Endpoint struct {
	conn net.PacketConn
	log  logging.LeveledLogger

	mu     sync.RWMutex
	closed bool
}

// New creates an Endpoint bound per the configuration.
// SO_REUSEADDR is always set to allow rapid restarts.
func New(config Config) (*Endpoint, error) {
	e := &Endpoint{conn: config.Conn}

	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("transport")
	}

	if e.conn == nil {
		if config.Port == 0 {
			config.Port = DefaultPort
		}

		lc := net.ListenConfig{
			Control: controlSocket(config.Broadcast),
		}
		conn, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(config.BindIP, strconv.Itoa(config.Port)))
		if err != nil {
			return nil, fmt.Errorf("transport: bind %s:%d: %w", config.BindIP, config.Port, err)
		}
		e.conn = conn
	}

	if e.log != nil {
		e.log.Infof("endpoint bound on %s", e.conn.LocalAddr())
	}

	return e, nil
}

// Send transmits a text datagram to ip:port. Best-effort fire-and-forget.
func (e *Endpoint) Send(msg string, ip string, port int) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	e.mu.RUnlock()

	if len(msg) > MaxDatagramSize {
		return ErrMessageTooLarge
	}

	parsed := net.ParseIP(ip)
	if parsed == nil || port <= 0 || port > 65535 {
		return ErrInvalidAddress
	}

	_, err := e.conn.WriteTo([]byte(msg), &net.UDPAddr{IP: parsed, Port: port})
	if err != nil {
		if e.log != nil {
			e.log.Warnf("send to %s:%d failed: %v", ip, port, err)
		}
		return err
	}
	return nil
}

// Recv blocks until a datagram arrives and returns it with the source
// address. Invalid UTF-8 sequences are dropped from the payload; the
// protocol above treats malformed frames as drop-on-parse anyway.
// Returns ErrClosed once the endpoint is closed.
func (e *Endpoint) Recv() (msg string, ip string, port int, err error) {
	buf := make([]byte, MaxDatagramSize)

	n, addr, err := e.conn.ReadFrom(buf)
	if err != nil {
		e.mu.RLock()
		closed := e.closed
		e.mu.RUnlock()
		if closed {
			return "", "", 0, ErrClosed
		}
		return "", "", 0, err
	}

	host, portStr, splitErr := net.SplitHostPort(addr.String())
	if splitErr != nil {
		return "", "", 0, ErrInvalidAddress
	}
	port, _ = strconv.Atoi(portStr)

	return strings.ToValidUTF8(string(buf[:n]), ""), host, port, nil
}

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// Close closes the endpoint and unblocks any in-flight Recv.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.log != nil {
		e.log.Info("endpoint closing")
	}

	// Short deadline first so a blocked read returns promptly.
	type deadliner interface{ SetReadDeadline(time.Time) error }
	if d, ok := e.conn.(deadliner); ok {
		d.SetReadDeadline(time.Now())
	}
	return e.conn.Close()
}
