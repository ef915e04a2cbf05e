package comm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRingExchange(t *testing.T) {
	const n = 5
	w, err := NewWorld(n, nil)
	require.NoError(t, err)

	err = w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		right := (c.Rank() + 1) % c.Size()
		left := (c.Rank() + c.Size() - 1) % c.Size()
		send := []float64{float64(c.Rank()), float64(c.Rank() * 10)}
		recv := make([]float64, 2)
		if err := WaitAll(
			c.Irecv(ctx, left, 7, recv),
			c.Isend(ctx, right, 7, send),
		); err != nil {
			return err
		}
		if recv[0] != float64(left) || recv[1] != float64(left*10) {
			return errors.New("wrong payload")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSameKeyMessagesStayOrdered(t *testing.T) {
	w, err := NewWorld(2, nil)
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		if c.Rank() == 0 {
			for i := 0; i < 20; i++ {
				if err := c.Isend(ctx, 1, 3, []float64{float64(i)}).Wait(); err != nil {
					return err
				}
			}
			return nil
		}
		buf := make([]float64, 1)
		for i := 0; i < 20; i++ {
			if err := c.Irecv(ctx, 0, 3, buf).Wait(); err != nil {
				return err
			}
			if buf[0] != float64(i) {
				return errors.New("out of order")
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSendToSelf(t *testing.T) {
	c := Self()
	out := make([]float64, 3)
	require.NoError(t, WaitAll(
		c.Isend(context.Background(), 0, 1, []float64{1, 2, 3}),
		c.Irecv(context.Background(), 0, 1, out),
	))
	assert.Equal(t, []float64{1, 2, 3}, out)
}

func TestAllReduceMax(t *testing.T) {
	const n = 6
	w, err := NewWorld(n, nil)
	require.NoError(t, err)
	results := make([][]float64, n)
	err = w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		r := float64(c.Rank())
		vals := []float64{r, -r, 100 - r}
		for rep := 0; rep < 3; rep++ {
			if err := c.AllReduceMax(ctx, vals); err != nil {
				return err
			}
		}
		results[c.Rank()] = vals
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < n; r++ {
		assert.Equal(t, []float64{n - 1, 0, 100}, results[r], "rank %d", r)
	}
}

func TestSizeMismatchAbortsWorld(t *testing.T) {
	w, err := NewWorld(3, nil)
	require.NoError(t, err)
	err = w.Run(context.Background(), func(ctx context.Context, c Communicator) error {
		switch c.Rank() {
		case 0:
			return c.Isend(ctx, 1, 0, []float64{1, 2, 3}).Wait()
		case 1:
			return c.Irecv(ctx, 0, 0, make([]float64, 2)).Wait()
		default:
			// blocks until the abort releases it
			return c.Irecv(ctx, 0, 9, make([]float64, 1)).Wait()
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.ErrorIs(t, w.Err(), ErrSizeMismatch)
}

func TestContextCancelReleasesReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Self().Irecv(ctx, 0, 4, make([]float64, 1)).Wait()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBadPeer(t *testing.T) {
	err := Self().Isend(context.Background(), 3, 0, nil).Wait()
	assert.ErrorIs(t, err, ErrBadRank)
}
