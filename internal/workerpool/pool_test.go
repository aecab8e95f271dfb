package workerpool

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllSubmittedJobs(t *testing.T) {
	p := New(Config{MaxWorkers: 4, QueueDepth: 100}, nil)
	defer p.Shutdown()

	var mu sync.Mutex
	ran := 0

	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Submit(func() error {
			defer wg.Done()
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		}))
	}
	wg.Wait()

	require.Equal(t, 50, ran)
}

func TestPool_SubmitFailsWhenQueueFull(t *testing.T) {
	p := New(Config{MaxWorkers: 1, QueueDepth: 1}, nil)
	defer p.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() error {
		close(started)
		<-block
		return nil
	}))
	<-started // first job is now running, not just queued

	require.NoError(t, p.Submit(func() error { return nil }))

	// A third submission has nowhere to go: one job is running, one is
	// already queued, and QueueDepth is 1.
	err := p.Submit(func() error { return nil })
	require.Error(t, err)

	close(block)
}

func TestPool_JobErrorsAreCountedNotPropagated(t *testing.T) {
	p := New(Config{MaxWorkers: 2, QueueDepth: 10}, nil)
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() error {
		defer wg.Done()
		return errors.New("boom")
	}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}
