package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrTransientSocketError marks a send failure that is worth retrying:
// the legacy request/reply wire protocol this repository's ancestor
// spoke before it was rebuilt on router/dealer sockets treated any
// mid-flight socket error as transient and retried with backoff rather
// than aborting the whole session, since a single dropped TCP segment
// should not fail an otherwise-healthy party. ReqRepMesh reproduces
// that retry loop for callers still addressing individual, synchronous
// request/reply turns instead of the router/dealer mesh.
var ErrTransientSocketError = errors.New("transport: transient socket error")

// ReqRepMesh wraps a *Mesh and retries SendTo on transient errors with
// linear backoff, mirroring the legacy request/reply transport's retry
// loop. It is not used by the default dealer/worker wiring, which relies
// on the router/dealer mesh's own connection-level reliability; it
// exists for callers that need the older point-to-point request/reply
// semantics (for instance a health check or out-of-band admin command).
type ReqRepMesh struct {
	inner      *Mesh
	maxRetries int
	backoff    time.Duration
}

// NewReqRepMesh wraps mesh with up to maxRetries retries, waiting
// backoff*attempt between each one.
func NewReqRepMesh(mesh *Mesh, maxRetries int, backoff time.Duration) *ReqRepMesh {
	return &ReqRepMesh{inner: mesh, maxRetries: maxRetries, backoff: backoff}
}

// SendTo retries mesh.SendTo up to maxRetries times when the underlying
// error is transient (ErrConnectFailure, ErrTransientSocketError, or a
// net.Error from the socket write), and only while the caller's context
// is not done. It gives up immediately on any other error, since those
// indicate a configuration problem rather than a dropped packet.
func (r *ReqRepMesh) SendTo(ctx context.Context, peer PartyID, payload []byte) error {
	return withRetry(ctx, r.maxRetries, r.backoff, func() error {
		err := r.inner.SendTo(peer, payload)
		if err == nil {
			return nil
		}
		var netErr net.Error
		if errors.Is(err, ErrConnectFailure) || errors.Is(err, ErrTransientSocketError) || errors.As(err, &netErr) {
			return err
		}
		return backoffStop{err}
	})
}

// backoffStop wraps an error that withRetry should surface immediately,
// without consuming another attempt.
type backoffStop struct{ err error }

func (b backoffStop) Error() string { return b.err.Error() }
func (b backoffStop) Unwrap() error { return b.err }

func withRetry(ctx context.Context, maxRetries int, backoff time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var stop backoffStop
		if errors.As(err, &stop) {
			return stop.err
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt+1)):
		}
	}
	return lastErr
}
