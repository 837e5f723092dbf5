package discovery

import (
	"testing"
	"time"

	"github.com/anonchat/anonchat/pkg/identity"
	"github.com/anonchat/anonchat/pkg/transport"
)

func newIdentity(t *testing.T, nickname string) *identity.Identity {
	t.Helper()
	id, err := identity.New(nickname)
	if err != nil {
		t.Fatalf("identity.New() error = %v", err)
	}
	return id
}

// newDiscovery returns an unstarted Discovery without a transport,
// for direct handleDatagram tests.
func newDiscovery(t *testing.T, timeout time.Duration) *Discovery {
	t.Helper()
	return New(Config{
		Identity: newIdentity(t, ""),
		Timeout:  timeout,
	})
}

func TestHandleDatagramPresence(t *testing.T) {
	d := newDiscovery(t, 0)

	// GM_ACK so no reply is attempted on the nil transport.
	d.handleDatagram("GM_ACK anon-bbbbbbbb somekey", "10.0.0.2")

	peers := d.GetPeers()
	p, ok := peers["anon-bbbbbbbb"]
	if !ok {
		t.Fatalf("peer not inserted, table = %v", peers)
	}
	if p.IP != "10.0.0.2" || p.PublicKey != "somekey" || p.Nickname != "" {
		t.Errorf("peer = %+v", p)
	}
	if time.Since(p.LastSeen) > time.Second {
		t.Errorf("LastSeen not refreshed: %v", p.LastSeen)
	}
}

func TestHandleDatagramNicknamePreserved(t *testing.T) {
	d := newDiscovery(t, 0)

	d.handleDatagram("GM_ACK anon-bbbbbbbb key|QWxpY2U", "10.0.0.2")
	if p := d.GetPeers()["anon-bbbbbbbb"]; p.Nickname != "Alice" {
		t.Fatalf("nickname = %q, want Alice", p.Nickname)
	}

	// A later presence frame without nickname keeps the prior one.
	d.handleDatagram("GM_ACK anon-bbbbbbbb key", "10.0.0.2")
	if p := d.GetPeers()["anon-bbbbbbbb"]; p.Nickname != "Alice" {
		t.Errorf("nickname = %q, want preserved Alice", p.Nickname)
	}
}

func TestHandleDatagramNick(t *testing.T) {
	d := newDiscovery(t, 0)

	// NICK for an unknown peer is ignored.
	d.handleDatagram("NICK anon-bbbbbbbb Qm9i", "10.0.0.2")
	if len(d.GetPeers()) != 0 {
		t.Fatalf("NICK created a peer entry")
	}

	d.handleDatagram("GM_ACK anon-bbbbbbbb key", "10.0.0.2")
	d.handleDatagram("NICK anon-bbbbbbbb Qm9i", "10.0.0.2")
	if p := d.GetPeers()["anon-bbbbbbbb"]; p.Nickname != "Bob" {
		t.Errorf("nickname = %q, want Bob", p.Nickname)
	}
}

func TestLoopbackSuppression(t *testing.T) {
	d := newDiscovery(t, 0)
	self := d.identity.AnonID()

	d.handleDatagram("GM_ACK "+self+" key", "10.0.0.2")
	d.handleDatagram("NICK "+self+" Qm9i", "10.0.0.2")

	if len(d.GetPeers()) != 0 {
		t.Errorf("own frames changed the peer table: %v", d.GetPeers())
	}
}

func TestHandleDatagramDrops(t *testing.T) {
	d := newDiscovery(t, 0)

	for _, msg := range []string{
		"GM anon-bbbbbbbb",       // two tokens
		"",                       // empty
		"WHAT anon-bbbbbbbb key", // unknown type
	} {
		d.handleDatagram(msg, "10.0.0.2")
	}

	if len(d.GetPeers()) != 0 {
		t.Errorf("malformed frames changed the peer table: %v", d.GetPeers())
	}
}

func TestEncHandlerRouting(t *testing.T) {
	d := newDiscovery(t, 0)

	var gotSender, gotBlob, gotIP string
	calls := 0
	d.SetEncHandler(func(senderID, blob, srcIP string) {
		gotSender, gotBlob, gotIP = senderID, blob, srcIP
		calls++
	})

	d.handleDatagram("ENC anon-bbbbbbbb bm9uY2U.Y3Q", "10.0.0.2")

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if gotSender != "anon-bbbbbbbb" || gotBlob != "bm9uY2U.Y3Q" || gotIP != "10.0.0.2" {
		t.Errorf("handler got (%q, %q, %q)", gotSender, gotBlob, gotIP)
	}

	// ENC frames never touch the peer table.
	if len(d.GetPeers()) != 0 {
		t.Errorf("ENC frame changed the peer table")
	}

	// Without a handler the frame is dropped.
	d.SetEncHandler(nil)
	d.handleDatagram("ENC anon-bbbbbbbb bm9uY2U.Y3Q", "10.0.0.2")
	if calls != 1 {
		t.Errorf("handler calls = %d after unregister, want 1", calls)
	}
}

func TestPeerExpiry(t *testing.T) {
	d := newDiscovery(t, 50*time.Millisecond)

	d.handleDatagram("GM_ACK anon-bbbbbbbb key", "10.0.0.2")
	if len(d.GetPeers()) != 1 {
		t.Fatalf("peer not inserted")
	}

	time.Sleep(80 * time.Millisecond)
	if peers := d.GetPeers(); len(peers) != 0 {
		t.Errorf("peer not expired: %v", peers)
	}
}

// TestHandshake runs two Discovery instances over an in-memory pipe and
// checks the GM / GM_ACK exchange converges both peer tables.
func TestHandshake(t *testing.T) {
	epA, epB, pipe, err := transport.NewEndpointPair(0)
	if err != nil {
		t.Fatalf("NewEndpointPair() error = %v", err)
	}
	defer pipe.Close()
	defer epA.Close()
	defer epB.Close()

	idA := newIdentity(t, "Alice")
	idB := newIdentity(t, "")

	// On the pipe the "broadcast" address is simply the other endpoint.
	dA := New(Config{
		Transport:   epA,
		Identity:    idA,
		BroadcastIP: "192.0.2.2",
		Port:        transport.DefaultPort,
		Interval:    20 * time.Millisecond,
	})
	dB := New(Config{
		Transport:   epB,
		Identity:    idB,
		BroadcastIP: "192.0.2.1",
		Port:        transport.DefaultPort,
		Interval:    20 * time.Millisecond,
	})

	if err := dA.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := dB.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		peersA := dA.GetPeers()
		peersB := dB.GetPeers()
		if _, okB := peersA[idB.AnonID()]; okB {
			if _, okA := peersB[idA.AnonID()]; okA {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("tables did not converge: A=%v B=%v", peersA, peersB)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// B learned A's key and nickname from the beacon.
	pa := dB.GetPeers()[idA.AnonID()]
	if pa.PublicKey != idA.Box().PublicKeyB64() {
		t.Errorf("B stored key %q, want %q", pa.PublicKey, idA.Box().PublicKeyB64())
	}
	if pa.Nickname != "Alice" {
		t.Errorf("B stored nickname %q, want Alice", pa.Nickname)
	}

	// A learned B's key from the ack.
	pb := dA.GetPeers()[idB.AnonID()]
	if pb.PublicKey != idB.Box().PublicKeyB64() {
		t.Errorf("A stored key %q, want %q", pb.PublicKey, idB.Box().PublicKeyB64())
	}

	if err := dA.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := dB.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	epA.Close()
	epB.Close()
	dA.Wait()
	dB.Wait()
}

func TestStartStopLifecycle(t *testing.T) {
	ep, _, pipe, err := transport.NewEndpointPair(0)
	if err != nil {
		t.Fatalf("NewEndpointPair() error = %v", err)
	}
	defer pipe.Close()

	d := New(Config{
		Transport: ep,
		Identity:  newIdentity(t, ""),
		Interval:  time.Hour,
	})

	if err := d.Stop(); err != ErrNotStarted {
		t.Errorf("Stop() before Start error = %v, want %v", err, ErrNotStarted)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := d.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := d.Stop(); err != ErrClosed {
		t.Errorf("second Stop() error = %v, want %v", err, ErrClosed)
	}

	ep.Close()
	d.Wait()
}
