// Package mocknet provides an in-memory stand-in for package transport,
// wiring every party's Mesh to every other party's through Go channels
// instead of TCP sockets. It exposes the same SendTo/Broadcast/RecvAny/
// RecvFrom/Reply/ReplyTo/Close surface so protocol-level tests can run
// an entire dealer/worker session without touching the network,
// following the pkg/cbmpc/mocknet in-memory-mesh pattern of the
// cb-mpc-go project this repository was adapted from (per-role channels
// and locks, no real transport).
package mocknet

import (
	"sync"
	"time"

	"github.com/andrebq/spdz-mpc/transport"
)

type identified struct {
	peer    transport.PartyID
	payload []byte
}

// Mesh is the in-memory counterpart of transport.Mesh.
type Mesh struct {
	self  transport.PartyID
	peers map[transport.PartyID]*Mesh

	mu       sync.Mutex
	pending  map[transport.PartyID][][]byte
	incoming chan identified
	closed   bool

	lastMu    sync.Mutex
	lastPeer  transport.PartyID
	lastKnown bool
}

// New builds one interconnected Mesh per party in parties, fully meshed.
func New(parties []transport.PartyID) map[transport.PartyID]*Mesh {
	meshes := make(map[transport.PartyID]*Mesh, len(parties))
	for _, p := range parties {
		meshes[p] = &Mesh{
			self:     p,
			pending:  make(map[transport.PartyID][][]byte),
			incoming: make(chan identified, 4096),
		}
	}
	for _, m := range meshes {
		m.peers = meshes
	}
	return meshes
}

// SendTo delivers payload directly into peer's inbox, tagged with this
// mesh's party id as sender.
func (m *Mesh) SendTo(peer transport.PartyID, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	dst, ok := m.peers[peer]
	if !ok {
		return transport.ErrUnknownPeer
	}
	dst.mu.Lock()
	dstClosed := dst.closed
	dst.mu.Unlock()
	if dstClosed {
		return transport.ErrClosed
	}
	dst.incoming <- identified{peer: m.self, payload: payload}
	return nil
}

// Broadcast delivers payload to every other party in the mesh.
func (m *Mesh) Broadcast(payload []byte) error {
	for peer := range m.peers {
		if peer == m.self {
			continue
		}
		if err := m.SendTo(peer, payload); err != nil {
			return err
		}
	}
	return nil
}

// RecvAny mirrors transport.Mesh.RecvAny.
func (m *Mesh) RecvAny(timeout time.Duration) (transport.PartyID, []byte, error) {
	m.mu.Lock()
	for peer, q := range m.pending {
		if len(q) > 0 {
			msg := q[0]
			m.pending[peer] = q[1:]
			m.mu.Unlock()
			m.setLastRouting(peer)
			return peer, msg, nil
		}
	}
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, nil, transport.ErrClosed
	}

	select {
	case id := <-m.incoming:
		m.setLastRouting(id.peer)
		return id.peer, id.payload, nil
	case <-time.After(timeout):
		return 0, nil, nil
	}
}

// RecvFrom mirrors transport.Mesh.RecvFrom.
func (m *Mesh) RecvFrom(peer transport.PartyID, timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	if q := m.pending[peer]; len(q) > 0 {
		msg := q[0]
		m.pending[peer] = q[1:]
		m.mu.Unlock()
		return msg, nil
	}
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, transport.ErrClosed
	}

	deadline := time.After(timeout)
	for {
		select {
		case id := <-m.incoming:
			if id.peer == peer {
				return id.payload, nil
			}
			m.mu.Lock()
			m.pending[id.peer] = append(m.pending[id.peer], id.payload)
			m.mu.Unlock()
		case <-deadline:
			return nil, nil
		}
	}
}

func (m *Mesh) setLastRouting(peer transport.PartyID) {
	m.lastMu.Lock()
	m.lastPeer = peer
	m.lastKnown = true
	m.lastMu.Unlock()
}

// Reply sends payload back to whoever last arrived via RecvAny; RecvFrom
// does not change the stored sender.
func (m *Mesh) Reply(payload []byte) error {
	m.lastMu.Lock()
	peer, ok := m.lastPeer, m.lastKnown
	m.lastMu.Unlock()
	if !ok {
		return transport.ErrNoRoutingID
	}
	return m.SendTo(peer, payload)
}

// ReplyTo sends payload back to the party named by routingID
// (Party{self}_to_{peer}, from that peer's point of view).
func (m *Mesh) ReplyTo(routingID string, payload []byte) error {
	src, _, err := transport.ParseIdentity(routingID)
	if err != nil {
		return err
	}
	return m.SendTo(src, payload)
}

// Close marks the mesh closed: later sends to or from it fail with
// ErrClosed, and later receives on it return ErrClosed once no buffered
// message remains. A receive already waiting is not woken; it returns
// at its timeout.
func (m *Mesh) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
