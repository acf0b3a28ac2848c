package protocol

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/andrebq/spdz-mpc/field"
	"github.com/andrebq/spdz-mpc/internal/obslog"
	"github.com/andrebq/spdz-mpc/sharing"
	"github.com/andrebq/spdz-mpc/transport"
)

// Worker is the single-threaded cooperative state machine that repeats
// recv_any -> dispatch -> maybe reply until SHUTDOWN clears its running
// flag. All fields below are owned exclusively by the goroutine that
// calls Run; there is no internal locking, matching spec's
// single-writer-of-protocol-state discipline.
type Worker struct {
	mesh    Mesh
	self    transport.PartyID
	dealer  transport.PartyID
	peers   []transport.PartyID // other workers, excluding self and the dealer
	macMode bool
	rng     io.Reader
	log     obslog.Logger
	timeout time.Duration

	running bool

	receivedShares    [2]field.Elem
	receivedMacShares [2]field.Elem
	seed              [32]byte
	rEps, rRho        field.Elem

	triple struct {
		a, b, c          field.Elem
		macA, macB, macC field.Elem
		keyShare         field.Elem
	}

	zi, ziMac, batchZeroShare field.Elem
	epsilon, rho              field.Elem
}

// NewWorker builds a Worker. peers lists every other worker (not
// including self or dealer); it is used only by the multiplication
// kernel's peer-to-peer broadcast.
func NewWorker(mesh Mesh, self, dealer transport.PartyID, peers []transport.PartyID, macMode bool, rng io.Reader, log obslog.Logger) *Worker {
	if rng == nil {
		rng = rand.Reader
	}
	if log == nil {
		log = obslog.NewNop()
	}
	return &Worker{
		mesh:    mesh,
		self:    self,
		dealer:  dealer,
		peers:   peers,
		macMode: macMode,
		rng:     rng,
		log:     log,
		timeout: DefaultRecvTimeout,
	}
}

// Run loops recv_any -> dispatch until SHUTDOWN is processed, then
// returns nil. It takes no context and has no external cancellation; the
// loop otherwise ends only when the mesh's RecvAny or a handler returns
// an error, and Run returns that error.
func (w *Worker) Run() error {
	w.running = true
	for w.running {
		peer, msg, err := w.mesh.RecvAny(w.timeout)
		if err != nil {
			return errorf("recv-any", err)
		}
		if msg == nil {
			continue // timeout: re-check running and poll again
		}
		code, payload, err := decodeCommand(msg)
		if err != nil {
			w.log.Warn("dropped malformed command", "peer", peer, "error", err)
			continue
		}
		if err := w.dispatch(code, payload); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) dispatch(code Code, payload []byte) error {
	switch code {
	case CodeSendShares:
		return w.handleSendShares(payload)
	case CodeAddition:
		return w.handleAddition()
	case CodeMultiplication:
		return w.handleMultiplication()
	case CodeFetchMultShare:
		return w.handleFetchMultShare()
	case CodeShutdown:
		w.running = false
		return nil
	default:
		w.log.Warn("dropped unexpected command", "code", code)
		return nil
	}
}

func (w *Worker) handleSendShares(payload []byte) error {
	if w.macMode {
		segs, seed, err := decodeSegmentsWithSeed(payload, 4)
		if err != nil {
			w.log.Warn("dropped malformed SEND_SHARES", "error", err)
			return nil
		}
		w.receivedShares[0], w.receivedShares[1] = segs[0], segs[1]
		w.receivedMacShares[0], w.receivedMacShares[1] = segs[2], segs[3]
		w.seed = seed
		w.rEps, w.rRho = deriveBatchZeroCoefficients(seed)
	} else {
		segs, err := decodeSegments(payload, 2)
		if err != nil {
			w.log.Warn("dropped malformed SEND_SHARES", "error", err)
			return nil
		}
		w.receivedShares[0], w.receivedShares[1] = segs[0], segs[1]
	}
	return w.replySuccess()
}

func (w *Worker) handleAddition() error {
	sigma := sharing.SumLocal(w.receivedShares[:])
	if w.macMode {
		tau := sharing.SumLocal(w.receivedMacShares[:])
		return w.mesh.Reply(encodePayload(sigma, tau))
	}
	return w.mesh.Reply(encodePayload(sigma))
}

func (w *Worker) handleMultiplication() error {
	want := 3
	if w.macMode {
		want = 7
	}
	payload, err := w.mesh.RecvFrom(w.dealer, w.timeout)
	if err != nil {
		return errorf("multiplication-triple-recv", err)
	}
	segs, err := decodeSegments(payload, want)
	if err != nil {
		w.log.Warn("dropped malformed triple", "error", err)
		return nil
	}
	w.triple.a, w.triple.b, w.triple.c = segs[0], segs[1], segs[2]
	if w.macMode {
		w.triple.macA, w.triple.macB, w.triple.macC, w.triple.keyShare = segs[3], segs[4], segs[5], segs[6]
	}

	if err := w.replySuccess(); err != nil {
		return errorf("multiplication-triple-ack", err)
	}

	if err := w.runMultiplicationKernel(); err != nil {
		return errorf("multiplication-kernel", err)
	}

	return w.replySuccess()
}

func (w *Worker) runMultiplicationKernel() error {
	xi, yi := w.receivedShares[0], w.receivedShares[1]
	di := field.Sub(xi, w.triple.a)
	ei := field.Sub(yi, w.triple.b)

	for _, peer := range w.peers {
		if err := w.mesh.SendTo(peer, encodePayload(di, ei)); err != nil {
			return fmt.Errorf("party %d: %w", peer, err)
		}
	}

	D, E := di, ei
	for _, peer := range w.peers {
		payload, err := w.mesh.RecvFrom(peer, w.timeout)
		if err != nil {
			return fmt.Errorf("party %d: %w", peer, err)
		}
		segs, err := decodeSegments(payload, 2)
		if err != nil {
			return fmt.Errorf("party %d: %w", peer, err)
		}
		D = field.Add(D, segs[0])
		E = field.Add(E, segs[1])
	}

	w.epsilon, w.rho = D, E
	w.zi = sharing.BeaverLocal(xi, yi, w.triple.a, w.triple.b, w.triple.c, D, E, int(w.self))

	if w.macMode {
		w.ziMac = sharing.MacLocal(w.triple.macC, w.triple.macB, w.triple.macA, w.triple.keyShare, D, E, int(w.self))
		w.batchZeroShare = sharing.BatchZeroShare(
			w.receivedMacShares[0], w.triple.macA,
			w.receivedMacShares[1], w.triple.macB,
			w.triple.keyShare, w.rEps, w.rRho, D, E,
		)
	}
	return nil
}

func (w *Worker) handleFetchMultShare() error {
	if err := w.replySuccess(); err != nil {
		return err
	}
	if err := w.mesh.Reply(encodePayload(w.zi)); err != nil {
		return err
	}
	if !w.macMode {
		return nil
	}
	if err := w.mesh.Reply(encodePayload(w.ziMac)); err != nil {
		return err
	}
	return w.mesh.Reply(encodePayload(w.batchZeroShare))
}

func (w *Worker) replySuccess() error {
	return w.mesh.Reply(encodeCommand(CodeSuccess))
}
