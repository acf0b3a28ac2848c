// Package protocol implements the dealer-driven command state machine
// that coordinates share distribution, addition opening, Beaver-triple
// distribution, multiplication, and MAC/batch-zero verification on top
// of packages field, sharing and transport.
package protocol

import (
	"time"

	"github.com/andrebq/spdz-mpc/transport"
)

// Code is a one-byte command prefixing every control message exchanged
// between the dealer and a worker.
type Code byte

const (
	CodeSendShares     Code = 0
	CodeSuccess        Code = 1
	CodeShutdown       Code = 2
	CodeAddition       Code = 3
	CodeMultiplication Code = 4
	CodeFetchMultShare Code = 5
)

func (c Code) String() string {
	switch c {
	case CodeSendShares:
		return "SEND_SHARES"
	case CodeSuccess:
		return "SUCCESS"
	case CodeShutdown:
		return "SHUTDOWN"
	case CodeAddition:
		return "ADDITION"
	case CodeMultiplication:
		return "MULTIPLICATION"
	case CodeFetchMultShare:
		return "FETCH_MULT_SHARE"
	default:
		return "UNKNOWN"
	}
}

// DefaultRecvTimeout is the per-recv_any polling timeout the worker loop
// waits before re-checking its running flag.
const DefaultRecvTimeout = 300 * time.Millisecond

// Mesh is the subset of transport.Mesh / mocknet.Mesh that the protocol
// layer depends on, so dealer and worker logic can run unchanged over a
// real TCP mesh or the in-memory mocknet used in tests.
type Mesh interface {
	SendTo(peer transport.PartyID, payload []byte) error
	Broadcast(payload []byte) error
	RecvAny(timeout time.Duration) (transport.PartyID, []byte, error)
	RecvFrom(peer transport.PartyID, timeout time.Duration) ([]byte, error)
	Reply(payload []byte) error
	ReplyTo(routingID string, payload []byte) error
	Close() error
}
