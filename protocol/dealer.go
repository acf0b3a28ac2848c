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

// Result is what the dealer learns after driving one addition and one
// multiplication gate to completion.
type Result struct {
	Sum          field.Elem
	Product      field.Elem
	MacVerified  bool
	SumMac       field.Elem
	ProductMac   field.Elem
	BatchZeroSum field.Elem
}

// Dealer drives the command sequence of spec §4.D against a fixed set
// of workers. It holds exactly one secret per gate input and is never
// its own peer (see DESIGN.md's resolution of the dealer self-ack open
// question).
type Dealer struct {
	mesh    Mesh
	workers []transport.PartyID
	macMode bool
	rng     io.Reader
	log     obslog.Logger
	timeout time.Duration

	alpha field.Elem
	seed  [32]byte
}

// NewDealer builds a Dealer addressing workers through mesh.
func NewDealer(mesh Mesh, workers []transport.PartyID, macMode bool, rng io.Reader, log obslog.Logger) *Dealer {
	if rng == nil {
		rng = rand.Reader
	}
	if log == nil {
		log = obslog.NewNop()
	}
	return &Dealer{
		mesh:    mesh,
		workers: workers,
		macMode: macMode,
		rng:     rng,
		log:     log,
		timeout: DefaultRecvTimeout,
	}
}

// Run executes key setup (MAC mode only), SEND_SHARES, ADDITION,
// MULTIPLICATION and FETCH_MULT_SHARE over the two secrets x, y, then
// SHUTDOWN, and returns the reconstructed sum and product. It aborts
// with a *MacFailure if any SPDZ consistency check fails.
func (d *Dealer) Run(x, y field.Elem) (Result, error) {
	n := len(d.workers)
	if d.macMode {
		if err := d.keySetup(); err != nil {
			return Result{}, errorf("key-setup", err)
		}
	}

	if err := d.sendShares(x, y, n); err != nil {
		return Result{}, errorf("send-shares", err)
	}
	if err := d.awaitSuccessFromAll(); err != nil {
		return Result{}, errorf("send-shares-ack", err)
	}

	result, err := d.addition()
	if err != nil {
		return Result{}, err
	}

	triple, err := d.multiplication(n)
	if err != nil {
		return Result{}, err
	}

	if err := d.fetchMultShare(triple, &result); err != nil {
		return Result{}, err
	}

	if err := d.shutdown(); err != nil {
		d.log.Warn("shutdown send failed", "error", err)
	}
	return result, nil
}

func (d *Dealer) keySetup() error {
	alpha, err := field.RandUniform(d.rng)
	if err != nil {
		return err
	}
	var seed [32]byte
	if _, err := io.ReadFull(d.rng, seed[:]); err != nil {
		return fmt.Errorf("session seed: %w", err)
	}
	d.alpha = alpha
	d.seed = seed
	return nil
}

func (d *Dealer) sendShares(x, y field.Elem, n int) error {
	xs, err := sharing.Split(x, n, d.rng)
	if err != nil {
		return err
	}
	ys, err := sharing.Split(y, n, d.rng)
	if err != nil {
		return err
	}

	var macXs, macYs []field.Elem
	if d.macMode {
		if macXs, err = sharing.MacSplit(x, d.alpha, n, d.rng); err != nil {
			return err
		}
		if macYs, err = sharing.MacSplit(y, d.alpha, n, d.rng); err != nil {
			return err
		}
	}

	for i, worker := range d.workers {
		var msg []byte
		if d.macMode {
			msg = encodeCommandWithSeed(CodeSendShares, d.seed, xs[i], ys[i], macXs[i], macYs[i])
		} else {
			msg = encodeCommand(CodeSendShares, xs[i], ys[i])
		}
		if err := d.mesh.SendTo(worker, msg); err != nil {
			return fmt.Errorf("party %d: %w", worker, err)
		}
	}
	return nil
}

func (d *Dealer) awaitSuccessFromAll() error {
	for _, worker := range d.workers {
		if err := d.awaitSuccess(worker); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dealer) awaitSuccess(worker transport.PartyID) error {
	msg, err := d.mesh.RecvFrom(worker, d.timeout)
	if err != nil {
		return fmt.Errorf("party %d: %w", worker, err)
	}
	code, _, err := decodeCommand(msg)
	if err != nil {
		return fmt.Errorf("party %d: %w", worker, err)
	}
	if code != CodeSuccess {
		return fmt.Errorf("party %d: %w: got %s, want SUCCESS", worker, ErrUnexpectedCode, code)
	}
	return nil
}

func (d *Dealer) addition() (Result, error) {
	for _, worker := range d.workers {
		if err := d.mesh.SendTo(worker, encodeCommand(CodeAddition)); err != nil {
			return Result{}, errorf("addition-send", fmt.Errorf("party %d: %w", worker, err))
		}
	}

	sigma := field.Zero()
	tau := field.Zero()
	want := 1
	if d.macMode {
		want = 2
	}
	for _, worker := range d.workers {
		payload, err := d.mesh.RecvFrom(worker, d.timeout)
		if err != nil {
			return Result{}, errorf("addition-recv", fmt.Errorf("party %d: %w", worker, err))
		}
		segs, err := decodeSegments(payload, want)
		if err != nil {
			return Result{}, errorf("addition-recv", fmt.Errorf("party %d: %w", worker, err))
		}
		sigma = field.Add(sigma, segs[0])
		if d.macMode {
			tau = field.Add(tau, segs[1])
		}
	}

	if d.macMode {
		if !field.Mul(sigma, d.alpha).Equal(tau) {
			return Result{}, &MacFailure{Check: "addition"}
		}
	}
	return Result{Sum: sigma, SumMac: tau, MacVerified: d.macMode}, nil
}

func (d *Dealer) multiplication(n int) (sharing.Triple, error) {
	for _, worker := range d.workers {
		if err := d.mesh.SendTo(worker, encodeCommand(CodeMultiplication)); err != nil {
			return sharing.Triple{}, errorf("multiplication-send", fmt.Errorf("party %d: %w", worker, err))
		}
	}

	triple, err := sharing.DistributeTriple(n, d.macMode, d.alpha, d.rng)
	if err != nil {
		return sharing.Triple{}, errorf("multiplication-triple", err)
	}

	for i, worker := range d.workers {
		var segs []field.Elem
		if d.macMode {
			segs = []field.Elem{triple.A[i], triple.B[i], triple.C[i], triple.MacA[i], triple.MacB[i], triple.MacC[i], triple.KeyShares[i]}
		} else {
			segs = []field.Elem{triple.A[i], triple.B[i], triple.C[i]}
		}
		if err := d.mesh.SendTo(worker, encodePayload(segs...)); err != nil {
			return sharing.Triple{}, errorf("multiplication-triple-send", fmt.Errorf("party %d: %w", worker, err))
		}
	}

	if err := d.awaitSuccessFromAll(); err != nil {
		return sharing.Triple{}, errorf("multiplication-triple-ack", err)
	}
	if err := d.awaitSuccessFromAll(); err != nil {
		return sharing.Triple{}, errorf("multiplication-kernel-ack", err)
	}
	return triple, nil
}

func (d *Dealer) fetchMultShare(triple sharing.Triple, result *Result) error {
	for _, worker := range d.workers {
		if err := d.mesh.SendTo(worker, encodeCommand(CodeFetchMultShare)); err != nil {
			return errorf("fetch-mult-share-send", fmt.Errorf("party %d: %w", worker, err))
		}
	}

	z := field.Zero()
	zMac := field.Zero()
	sigma := field.Zero()
	for _, worker := range d.workers {
		if err := d.awaitSuccess(worker); err != nil {
			return errorf("fetch-mult-share-ack", err)
		}
		zj, err := d.recvSingle(worker)
		if err != nil {
			return errorf("fetch-mult-share-z", err)
		}
		z = field.Add(z, zj)

		if d.macMode {
			zMacJ, err := d.recvSingle(worker)
			if err != nil {
				return errorf("fetch-mult-share-zmac", err)
			}
			zMac = field.Add(zMac, zMacJ)

			sigmaJ, err := d.recvSingle(worker)
			if err != nil {
				return errorf("fetch-mult-share-sigma", err)
			}
			sigma = field.Add(sigma, sigmaJ)
		}
	}

	if d.macMode {
		if !field.Mul(z, d.alpha).Equal(zMac) {
			return &MacFailure{Check: "multiplication"}
		}
		if !sigma.IsZero() {
			return &MacFailure{Check: "batch-zero"}
		}
	}

	result.Product = z
	result.ProductMac = zMac
	result.BatchZeroSum = sigma
	return nil
}

func (d *Dealer) recvSingle(worker transport.PartyID) (field.Elem, error) {
	payload, err := d.mesh.RecvFrom(worker, d.timeout)
	if err != nil {
		return field.Elem{}, fmt.Errorf("party %d: %w", worker, err)
	}
	segs, err := decodeSegments(payload, 1)
	if err != nil {
		return field.Elem{}, fmt.Errorf("party %d: %w", worker, err)
	}
	return segs[0], nil
}

func (d *Dealer) shutdown() error {
	var firstErr error
	for _, worker := range d.workers {
		if err := d.mesh.SendTo(worker, encodeCommand(CodeShutdown)); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("party %d: %w", worker, err)
		}
	}
	return firstErr
}
