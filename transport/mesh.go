// Package transport implements the n×n router/dealer messaging mesh: each
// party binds one inbound "router" listener and opens one outbound
// "dealer" connection per remote peer, tagged with a stable routing
// identity of the form Party{self}_to_{peer}. No ZeroMQ binding exists in
// the Go ecosystem retrieved for this project; the mesh is realized
// directly on top of net.Conn, following the same hand-rolled,
// length-prefixed framing as the examples/tlsnet transport of the
// cb-mpc-go project this repository was adapted from.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andrebq/spdz-mpc/internal/obslog"
)

// PartyID identifies a participant. Workers are 1..N; by convention the
// dealer party is N+1.
type PartyID int

var identityPattern = regexp.MustCompile(`^Party(\d+)_to_(\d+)$`)

// Identity returns the routing identity string a party uses when sending
// to peer: Party{self}_to_{peer}.
func Identity(self, peer PartyID) string {
	return fmt.Sprintf("Party%d_to_%d", self, peer)
}

// ParseIdentity parses a routing identity string of the form
// Party{src}_to_{dst}, returning the source and destination party ids.
func ParseIdentity(s string) (src, dst PartyID, err error) {
	m := identityPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedIdentity, s)
	}
	srcN, _ := strconv.ParseUint(m[1], 10, 32)
	dstN, _ := strconv.ParseUint(m[2], 10, 32)
	return PartyID(srcN), PartyID(dstN), nil
}

var (
	// ErrBindFailure is returned when a party cannot bind its router listener.
	ErrBindFailure = errors.New("transport: bind failure")
	// ErrConnectFailure is returned when a dealer connection cannot be established.
	ErrConnectFailure = errors.New("transport: connect failure")
	// ErrUnknownPeer is returned by SendTo/ReplyTo for a peer with no established connection.
	ErrUnknownPeer = errors.New("transport: unknown peer")
	// ErrMalformedIdentity is returned when a received identity frame does not match Party{n}_to_{m}.
	ErrMalformedIdentity = errors.New("transport: malformed identity frame")
	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("transport: mesh closed")
	// ErrNoRoutingID is returned by Reply when no message has been received yet.
	ErrNoRoutingID = errors.New("transport: no stored routing id")
)

// Config lists every party's router address, including self (self's entry
// is used only to determine the local listen address). Log defaults to
// a no-op logger when nil.
type Config struct {
	Self      PartyID
	Endpoints map[PartyID]string // "host:port"
	Log       obslog.Logger
}

type identified struct {
	peer    PartyID
	payload []byte
}

// Mesh is a ready-to-use router/dealer transport for one party.
type Mesh struct {
	self      PartyID
	endpoints map[PartyID]string

	listener net.Listener
	log      obslog.Logger

	mu       sync.Mutex
	outbound map[PartyID]*dealerConn
	inbound  map[PartyID]*routerConn
	pending  map[PartyID][][]byte
	incoming chan identified
	closed   bool

	lastMu    sync.Mutex
	lastPeer  PartyID
	lastKnown bool
}

type dealerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

type routerConn struct {
	mu   sync.Mutex
	conn net.Conn
}

// Init binds the router listener, accepts the n-1 inbound connections and
// dials the n-1 outbound dealer connections described by cfg, all
// concurrently. It fails with ErrBindFailure or ErrConnectFailure.
func Init(ctx context.Context, cfg Config) (*Mesh, error) {
	addr, ok := cfg.Endpoints[cfg.Self]
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint for self (%d)", ErrBindFailure, cfg.Self)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindFailure, err)
	}

	log := cfg.Log
	if log == nil {
		log = obslog.NewNop()
	}

	m := &Mesh{
		self:      cfg.Self,
		endpoints: cfg.Endpoints,
		listener:  ln,
		log:       log,
		outbound:  make(map[PartyID]*dealerConn),
		inbound:   make(map[PartyID]*routerConn),
		pending:   make(map[PartyID][][]byte),
		incoming:  make(chan identified, 256),
	}

	peers := make([]PartyID, 0, len(cfg.Endpoints)-1)
	for id := range cfg.Endpoints {
		if id != cfg.Self {
			peers = append(peers, id)
		}
	}

	accepted := make(chan net.Conn, len(peers))
	go m.acceptLoop(accepted)

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			return m.dial(gctx, peer)
		})
	}
	if err := g.Wait(); err != nil {
		_ = ln.Close()
		return nil, err
	}

	for range peers {
		conn := <-accepted
		id, err := readIdentityHandshake(conn)
		if err != nil {
			_ = conn.Close()
			_ = m.Close()
			return nil, fmt.Errorf("%w: %v", ErrBindFailure, err)
		}
		rc := &routerConn{conn: conn}
		m.mu.Lock()
		m.inbound[id] = rc
		m.mu.Unlock()
		go m.readLoop(id, rc)
	}

	return m, nil
}

func (m *Mesh) acceptLoop(accepted chan<- net.Conn) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}
}

func (m *Mesh) dial(ctx context.Context, peer PartyID) error {
	addr, ok := m.endpoints[peer]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	var d net.Dialer
	var conn net.Conn
	for {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn = c
			break
		}
		// The peer may not have bound its router yet; keep trying until ctx ends.
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: party %d: %v", ErrConnectFailure, peer, err)
		case <-time.After(50 * time.Millisecond):
		}
	}
	if err := writeIdentityHandshake(conn, m.self); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: party %d: %v", ErrConnectFailure, peer, err)
	}
	m.mu.Lock()
	m.outbound[peer] = &dealerConn{conn: conn}
	m.mu.Unlock()
	// The peer's Reply/ReplyTo answers come back over this connection.
	go m.readLoop(peer, &routerConn{conn: conn})
	return nil
}

// writeIdentityHandshake and readIdentityHandshake establish, once per
// physical connection, which party dialed it; this lets the accepting
// router associate the connection with a peer id before any application
// frame arrives. It is distinct from the per-message identity frame
// carried by every subsequent SendTo/Reply (see writeFrame/readFrame
// below), which the protocol layer and spec.md §4.C/§8 both treat as part
// of the message, not the connection.
func writeIdentityHandshake(conn net.Conn, self PartyID) error {
	return writeFrame(conn, []byte(strconv.Itoa(int(self))))
}

func readIdentityHandshake(conn net.Conn) (PartyID, error) {
	b, err := readFrame(bufio.NewReader(conn))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return 0, fmt.Errorf("bad handshake: %w", err)
	}
	return PartyID(n), nil
}

func (m *Mesh) readLoop(peer PartyID, rc *routerConn) {
	br := bufio.NewReader(rc.conn)
	for {
		idFrame, err := readFrame(br)
		if err != nil {
			return
		}
		payload, err := readFrame(br)
		if err != nil {
			return
		}
		srcID, _, err := ParseIdentity(string(idFrame))
		if err != nil {
			m.log.Warn("dropped malformed identity frame", "peer", peer, "error", err)
			continue
		}
		select {
		case m.incoming <- identified{peer: srcID, payload: payload}:
		default:
			m.mu.Lock()
			m.incoming <- identified{peer: srcID, payload: payload}
			m.mu.Unlock()
		}
	}
}

// SendTo sends a single payload to peer over this party's dealer
// connection, framed as [identity, payload].
func (m *Mesh) SendTo(peer PartyID, payload []byte) error {
	m.mu.Lock()
	dc, ok := m.outbound[peer]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return writeIdentified(dc.conn, Identity(m.self, peer), payload)
}

// Broadcast sends payload to every peer except self. Per-peer failures
// are collected but do not abort delivery to the remaining peers.
func (m *Mesh) Broadcast(payload []byte) error {
	m.mu.Lock()
	peers := make([]PartyID, 0, len(m.outbound))
	for p := range m.outbound {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	var g errgroup.Group
	errs := make([]error, len(peers))
	for i, peer := range peers {
		i, peer := i, peer
		g.Go(func() error {
			errs[i] = m.SendTo(peer, payload)
			return nil
		})
	}
	_ = g.Wait()

	var joined []error
	for _, e := range errs {
		if e != nil {
			joined = append(joined, e)
		}
	}
	return errors.Join(joined...)
}

// RecvAny receives one message from any peer, returning its sender and
// payload. It returns (0, nil, nil) on timeout. The sender's identity is
// remembered for a later Reply.
func (m *Mesh) RecvAny(timeout time.Duration) (PartyID, []byte, error) {
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
		return 0, nil, ErrClosed
	}

	select {
	case id := <-m.incoming:
		m.setLastRouting(id.peer)
		return id.peer, id.payload, nil
	case <-time.After(timeout):
		return 0, nil, nil
	}
}

// RecvFrom receives one message known to originate from peer, buffering
// any other peers' messages observed in the meantime for later delivery.
// Returns an empty payload and nil error on timeout.
func (m *Mesh) RecvFrom(peer PartyID, timeout time.Duration) ([]byte, error) {
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
		return nil, ErrClosed
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

func (m *Mesh) setLastRouting(peer PartyID) {
	m.lastMu.Lock()
	m.lastPeer = peer
	m.lastKnown = true
	m.lastMu.Unlock()
}

// Reply sends payload back to whichever peer was most recently returned
// by RecvAny, using the stored routing identity. RecvFrom does not change
// the stored identity.
func (m *Mesh) Reply(payload []byte) error {
	m.lastMu.Lock()
	peer, ok := m.lastPeer, m.lastKnown
	m.lastMu.Unlock()
	if !ok {
		return ErrNoRoutingID
	}
	return m.ReplyTo(Identity(peer, m.self), payload)
}

// ReplyTo sends payload back over the inbound connection identified by
// routingID, an explicit form that does not depend on stored state.
func (m *Mesh) ReplyTo(routingID string, payload []byte) error {
	src, _, err := ParseIdentity(routingID)
	if err != nil {
		return err
	}
	m.mu.Lock()
	rc, ok := m.inbound[src]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, src)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return writeIdentified(rc.conn, Identity(m.self, src), payload)
}

// Close sets every socket to close immediately (the TCP analogue of
// setting ZeroMQ's linger to zero: no attempt is made to drain
// in-flight writes), closes the router listener and every dealer
// connection, and is safe to call more than once.
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	ln := m.listener
	outbound := m.outbound
	inbound := m.inbound
	m.mu.Unlock()

	var firstErr error
	if ln != nil {
		if err := ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, dc := range outbound {
		_ = dc.conn.Close()
	}
	for _, rc := range inbound {
		_ = rc.conn.Close()
	}
	return firstErr
}

func writeIdentified(conn net.Conn, identity string, payload []byte) error {
	if err := writeFrame(conn, []byte(identity)); err != nil {
		return err
	}
	return writeFrame(conn, payload)
}

func writeFrame(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
