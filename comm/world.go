package comm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Reserved tags for collectives. Point-to-point tags must be non-negative.
const (
	tagReduceGather = -1 - iota
	tagReduceBcast
)

// mailboxDepth bounds the eager messages queued per (src, dst, tag).
const mailboxDepth = 8

type mailboxKey struct {
	src, dst, tag int
}

// World is an in-process process group. Each rank runs on its own goroutine
// and messages travel through per (source, destination, tag) FIFO mailboxes,
// so messages with equal keys are matched in posting order.
type World struct {
	size   int
	logger *zap.Logger

	mu    sync.Mutex
	boxes map[mailboxKey]chan []float64

	abortOnce sync.Once
	aborted   chan struct{}
	cause     error
}

// NewWorld creates a group of size ranks.
func NewWorld(size int, logger *zap.Logger) (*World, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: world size %d", ErrBadRank, size)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &World{
		size:    size,
		logger:  logger,
		boxes:   make(map[mailboxKey]chan []float64),
		aborted: make(chan struct{}),
	}, nil
}

// Size is the number of ranks.
func (w *World) Size() int { return w.size }

// Comm returns the communicator for rank.
func (w *World) Comm(rank int) Communicator {
	return &rankComm{world: w, rank: rank}
}

// Run calls fn once per rank on its own goroutine and waits for all of them.
// The first error aborts the group and is returned.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Communicator) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < w.size; r++ {
		c := w.Comm(r)
		g.Go(func() error {
			if err := fn(gctx, c); err != nil {
				err = fmt.Errorf("rank %d: %w", c.Rank(), err)
				w.Abort(err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Abort releases every pending operation with ErrAborted. Only the first
// cause is kept.
func (w *World) Abort(cause error) {
	w.abortOnce.Do(func() {
		w.cause = cause
		w.logger.Error("process group aborted", zap.Error(cause))
		close(w.aborted)
	})
}

// Err returns the abort cause, or nil while the group is healthy.
func (w *World) Err() error {
	select {
	case <-w.aborted:
		return w.cause
	default:
		return nil
	}
}

func (w *World) mailbox(src, dst, tag int) chan []float64 {
	key := mailboxKey{src: src, dst: dst, tag: tag}
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.boxes[key]
	if !ok {
		ch = make(chan []float64, mailboxDepth)
		w.boxes[key] = ch
	}
	return ch
}

func (w *World) abortErr() error {
	return fmt.Errorf("%w: %w", ErrAborted, w.cause)
}

type rankComm struct {
	world *World
	rank  int
}

func (c *rankComm) Rank() int { return c.rank }

func (c *rankComm) Size() int { return c.world.size }

func (c *rankComm) Abort(cause error) { c.world.Abort(cause) }

func (c *rankComm) checkPeer(peer int) error {
	if peer < 0 || peer >= c.world.size {
		return fmt.Errorf("%w: peer %d in world of %d", ErrBadRank, peer, c.world.size)
	}
	return nil
}

func (c *rankComm) Isend(ctx context.Context, dst, tag int, buf []float64) *Request {
	req := newRequest()
	if err := c.checkPeer(dst); err != nil {
		req.complete(err)
		return req
	}
	msg := append([]float64(nil), buf...)
	ch := c.world.mailbox(c.rank, dst, tag)
	go func() {
		select {
		case ch <- msg:
			req.complete(nil)
		case <-c.world.aborted:
			req.complete(c.world.abortErr())
		case <-ctx.Done():
			req.complete(ctx.Err())
		}
	}()
	return req
}

func (c *rankComm) Irecv(ctx context.Context, src, tag int, buf []float64) *Request {
	req := newRequest()
	if err := c.checkPeer(src); err != nil {
		req.complete(err)
		return req
	}
	ch := c.world.mailbox(src, c.rank, tag)
	go func() {
		select {
		case msg := <-ch:
			if len(msg) != len(buf) {
				req.complete(fmt.Errorf("%w: rank %d expected %d values from rank %d tag %d, got %d",
					ErrSizeMismatch, c.rank, len(buf), src, tag, len(msg)))
				return
			}
			copy(buf, msg)
			req.complete(nil)
		case <-c.world.aborted:
			req.complete(c.world.abortErr())
		case <-ctx.Done():
			req.complete(ctx.Err())
		}
	}()
	return req
}

// AllReduceMax gathers to rank 0, reduces, and broadcasts the result.
func (c *rankComm) AllReduceMax(ctx context.Context, vals []float64) error {
	n := c.world.size
	if n == 1 {
		return nil
	}
	if c.rank != 0 {
		if err := WaitAll(c.Isend(ctx, 0, tagReduceGather, vals)); err != nil {
			return fmt.Errorf("all-reduce gather: %w", err)
		}
		if err := WaitAll(c.Irecv(ctx, 0, tagReduceBcast, vals)); err != nil {
			return fmt.Errorf("all-reduce broadcast: %w", err)
		}
		return nil
	}

	parts := make([][]float64, n)
	reqs := make([]*Request, 0, n-1)
	for r := 1; r < n; r++ {
		parts[r] = make([]float64, len(vals))
		reqs = append(reqs, c.Irecv(ctx, r, tagReduceGather, parts[r]))
	}
	if err := WaitAll(reqs...); err != nil {
		return fmt.Errorf("all-reduce gather: %w", err)
	}
	for r := 1; r < n; r++ {
		for i, v := range parts[r] {
			vals[i] = math.Max(vals[i], v)
		}
	}
	reqs = reqs[:0]
	for r := 1; r < n; r++ {
		reqs = append(reqs, c.Isend(ctx, r, tagReduceBcast, vals))
	}
	if err := WaitAll(reqs...); err != nil {
		return fmt.Errorf("all-reduce broadcast: %w", err)
	}
	return nil
}

// Self returns the communicator of a single-rank group.
func Self() Communicator {
	w, _ := NewWorld(1, nil)
	return w.Comm(0)
}
