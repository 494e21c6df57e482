package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glompo-dev/glompo/pkg/opt"
)

func TestGatePauseResume(t *testing.T) {
	g := NewGate(true)
	require.True(t, g.IsSet())
	require.NoError(t, g.Wait(context.Background()))

	g.Clear()
	require.False(t, g.IsSet())

	released := make(chan struct{})
	go func() {
		g.Wait(context.Background())
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("Wait returned while gate was cleared")
	case <-time.After(100 * time.Millisecond):
	}

	g.Set()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after gate was set")
	}
}

func TestGateWaitContextCancel(t *testing.T) {
	g := NewGate(false)
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- g.Wait(ctx) }()
	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}

func TestGateWaitTimeout(t *testing.T) {
	g := NewGate(false)
	open, err := g.WaitTimeout(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, open)

	g.Set()
	open, err = g.WaitTimeout(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, open)
}

func TestGateIdempotentSetClear(t *testing.T) {
	g := NewGate(false)
	g.Clear()
	g.Clear()
	g.Set()
	g.Set()
	assert.True(t, g.IsSet())
}

func TestEndpointRoundTrip(t *testing.T) {
	e := NewEndpoint()

	_, ok := e.Poll()
	assert.False(t, ok)

	require.NoError(t, e.Send(Signal{Code: SignalSaveState, Path: "/tmp/state"}))
	sig, ok := e.Poll()
	require.True(t, ok)
	assert.Equal(t, SignalSaveState, sig.Code)
	assert.Equal(t, "/tmp/state", sig.Path)

	e.Acknowledge(SignalSaveState, nil)
	ack, err := e.WaitAck(SignalSaveState, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SignalSaveState, ack.Code)
	assert.NoError(t, ack.Err)
}

func TestEndpointWaitAckTimeout(t *testing.T) {
	e := NewEndpoint()
	_, err := e.WaitAck(SignalPause, 30*time.Millisecond)
	assert.Error(t, err)
}

func TestEndpointFull(t *testing.T) {
	e := NewEndpoint()
	var err error
	for i := 0; i < endpointDepth+1; i++ {
		err = e.Send(Signal{Code: SignalStop})
	}
	assert.Error(t, err)
}

func TestSignalCodeString(t *testing.T) {
	assert.Equal(t, "stop_immediate", SignalStop.String())
	assert.Equal(t, "save_state", SignalSaveState.String())
	assert.Equal(t, "pause_and_ack", SignalPause.String())
}

func TestResultQueueBackpressure(t *testing.T) {
	q := NewResultQueue(2)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, opt.IterationResult{OptID: 1, NIter: 1}))
	require.NoError(t, q.Put(ctx, opt.IterationResult{OptID: 1, NIter: 2}))
	assert.Equal(t, 2, q.Len())

	// A third producer blocks until the consumer drains.
	var wg sync.WaitGroup
	wg.Add(1)
	blocked := make(chan struct{})
	go func() {
		defer wg.Done()
		close(blocked)
		q.Put(ctx, opt.IterationResult{OptID: 1, NIter: 3})
	}()
	<-blocked

	r, ok := q.Get(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, r.NIter)
	wg.Wait()
}

func TestResultQueuePutCancelled(t *testing.T) {
	q := NewResultQueue(1)
	require.NoError(t, q.Put(context.Background(), opt.IterationResult{NIter: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Put(ctx, opt.IterationResult{NIter: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultQueueGetTimeout(t *testing.T) {
	q := NewResultQueue(1)
	_, ok := q.Get(20 * time.Millisecond)
	assert.False(t, ok)

	_, ok = q.TryGet()
	assert.False(t, ok)
}
