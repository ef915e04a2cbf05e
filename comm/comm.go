// Package comm provides the point-to-point and collective operations the
// solver needs across a process group: non-blocking send and receive of
// float64 slabs, wait-all, and an all-reduce max.
//
// All ranks of a group live in one process as goroutines. A failure on any
// rank aborts the whole group; pending operations on the other ranks return
// ErrAborted and nothing is retried.
package comm

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

var (
	// ErrSizeMismatch is returned when a received message does not fit the
	// posted receive buffer.
	ErrSizeMismatch = errors.New("message size mismatch")
	// ErrAborted is returned by operations pending when the group aborts.
	ErrAborted = errors.New("process group aborted")
	// ErrBadRank is returned for a peer outside the group.
	ErrBadRank = errors.New("rank out of range")
)

// Communicator is one rank's view of a process group.
type Communicator interface {
	Rank() int
	Size() int
	// Isend posts a send of buf to dst. buf may be reused once the request
	// completes.
	Isend(ctx context.Context, dst, tag int, buf []float64) *Request
	// Irecv posts a receive from src into buf.
	Irecv(ctx context.Context, src, tag int, buf []float64) *Request
	// AllReduceMax replaces vals by the element-wise maximum over all ranks.
	AllReduceMax(ctx context.Context, vals []float64) error
	// Abort tears down the group with cause.
	Abort(cause error)
}

// Request is a pending non-blocking operation.
type Request struct {
	done chan struct{}
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) complete(err error) {
	r.err = err
	close(r.done)
}

// Wait blocks until the request finishes.
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// WaitAll blocks until every request finishes and combines their errors.
func WaitAll(reqs ...*Request) error {
	var err error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		err = multierr.Append(err, r.Wait())
	}
	return err
}
