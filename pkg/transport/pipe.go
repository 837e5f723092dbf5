package transport

import (
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Pipe provides bidirectional in-memory packet communication between
// two endpoints. It wraps pion's test.Bridge and delivers queued
// datagrams from a background goroutine.
//
// Pipe endpoints present themselves under the TEST-NET addresses
// 192.0.2.1 and 192.0.2.2, so the layers above see ordinary source
// addresses. Use Pipe for deterministic tests without real network I/O.
type Pipe struct {
	bridge *test.Bridge

	mu       sync.RWMutex
	dropRate float64
	closed   bool
	rng      *rand.Rand
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPipe creates a pipe with automatic message delivery.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()

	return p
}

// SetDropRate configures the probability (0.0-1.0) of dropping a
// datagram in either direction.
func (p *Pipe) SetDropRate(rate float64) {
	p.mu.Lock()
	p.dropRate = rate
	p.mu.Unlock()
}

// Close closes both pipe endpoints and stops the delivery goroutine.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// pipeIP returns the TEST-NET address for a pipe endpoint (0 or 1).
func pipeIP(id int) net.IP {
	return net.IPv4(192, 0, 2, byte(id+1))
}

// pipePacketConn adapts one side of a Pipe to net.PacketConn.
type pipePacketConn struct {
	conn      net.Conn
	pipe      *Pipe
	localAddr *net.UDPAddr
	peerAddr  *net.UDPAddr
}

func (c *pipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peerAddr, err
}

func (c *pipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	c.pipe.mu.RLock()
	drop := c.pipe.dropRate > 0 && c.pipe.rng.Float64() < c.pipe.dropRate
	c.pipe.mu.RUnlock()
	if drop {
		return len(b), nil // silently dropped
	}
	return c.conn.Write(b)
}

func (c *pipePacketConn) Close() error                       { return c.conn.Close() }
func (c *pipePacketConn) LocalAddr() net.Addr                { return c.localAddr }
func (c *pipePacketConn) SetDeadline(t time.Time) error      { return c.conn.SetDeadline(t) }
func (c *pipePacketConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *pipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

var _ net.PacketConn = (*pipePacketConn)(nil)

// NewEndpointPair returns two connected Endpoints backed by a Pipe.
// Datagrams sent on one arrive at the other regardless of target
// address; endpoint 0 appears as 192.0.2.1 and endpoint 1 as 192.0.2.2,
// both on port. Close the returned Pipe after closing the endpoints.
func NewEndpointPair(port int) (*Endpoint, *Endpoint, *Pipe, error) {
	if port == 0 {
		port = DefaultPort
	}

	pipe := NewPipe()

	conns := [2]net.Conn{pipe.bridge.GetConn0(), pipe.bridge.GetConn1()}
	endpoints := [2]*Endpoint{}
	for i := 0; i < 2; i++ {
		pc := &pipePacketConn{
			conn:      conns[i],
			pipe:      pipe,
			localAddr: &net.UDPAddr{IP: pipeIP(i), Port: port},
			peerAddr:  &net.UDPAddr{IP: pipeIP(1 - i), Port: port},
		}
		ep, err := New(Config{Conn: pc})
		if err != nil {
			pipe.Close()
			return nil, nil, nil, err
		}
		endpoints[i] = ep
	}

	return endpoints[0], endpoints[1], pipe, nil
}
