package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/grader/internal/pool"
	"github.com/stretchr/testify/require"
)

func TestRunKeepsSubmissionOrder(t *testing.T) {
	p := pool.New(4)
	defer p.Close()

	var jobs []func(context.Context) int
	for i := 0; i < 20; i++ {
		jobs = append(jobs, func(context.Context) int {
			// later jobs finish first
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i
		})
	}
	got, err := pool.Run(context.Background(), p, jobs)
	require.NoError(t, err)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestConcurrencyBounded(t *testing.T) {
	p := pool.New(2)
	defer p.Close()

	var running, peak atomic.Int32
	var jobs []func(context.Context) struct{}
	for i := 0; i < 10; i++ {
		jobs = append(jobs, func(context.Context) struct{} {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return struct{}{}
		})
	}
	_, err := pool.Run(context.Background(), p, jobs)
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestSingleWorkerNestedCoordinatorsDoNotDeadlock(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	// coordinators fan out without holding the only worker
	outer := make([]func(context.Context) int, 3)
	done := make(chan []int, 1)
	go func() {
		var sums []int
		for range outer {
			inner := []func(context.Context) int{
				func(context.Context) int { return 1 },
				func(context.Context) int { return 2 },
			}
			res, err := pool.Run(context.Background(), p, inner)
			if err != nil {
				t.Error(err)
			}
			sums = append(sums, res[0]+res[1])
		}
		done <- sums
	}()

	select {
	case sums := <-done:
		require.Equal(t, []int{3, 3, 3}, sums)
	case <-time.After(5 * time.Second):
		t.Fatal("nested submission deadlocked")
	}
}

func TestDoCancelledBeforePickup(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(context.Context) {
			close(started)
			<-release
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := p.Do(ctx, func(context.Context) { ran = true })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ran)
	close(release)
}
