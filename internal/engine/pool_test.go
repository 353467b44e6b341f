package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPool_RunsJobs(t *testing.T) {
	p := NewPool(2, 4, discardLogger)

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int32(4), n.Load())
}

func TestPool_CallerRunsWhenSaturated(t *testing.T) {
	p := NewPool(1, 1, discardLogger)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	assert.False(t, p.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// Fills the single queue slot while the worker is busy.
	assert.False(t, p.Submit(func() { <-block }))

	var ran atomic.Bool
	ranOnCaller := p.Submit(func() { ran.Store(true) })

	assert.True(t, ranOnCaller, "worker busy and queue full")
	assert.True(t, ran.Load(), "job ran before Submit returned")
	close(block)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(1, 1, discardLogger)
	p.Close()
	p.Close() // idempotent

	done := false
	assert.True(t, p.Submit(func() { done = true }))
	assert.True(t, done)
}

func TestPool_CloseWaitsForQueuedJobs(t *testing.T) {
	p := NewPool(1, 8, discardLogger)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			n.Add(1)
		})
	}
	p.Close()

	assert.Equal(t, int32(5), n.Load())
}

func TestNewPool_ClampsWorkers(t *testing.T) {
	p := NewPool(99, -1, discardLogger)
	defer p.Close()
	assert.Equal(t, DefaultQueueSize, cap(p.jobs))
}
