package pool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_InvalidCapacity(t *testing.T) {
	_, err := NewPool("bad", &Config{Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidPoolConfig)
}

func TestPool_RunExecutesEveryTaskOnce(t *testing.T) {
	p, err := NewPool("upload", &Config{Capacity: 2, ExpiryDuration: time.Second})
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, 2, p.Cap())

	var n atomic.Int32
	tasks := make([]func(), 20)
	for i := range tasks {
		tasks[i] = func() {
			time.Sleep(time.Millisecond)
			n.Add(1)
		}
	}
	p.Run(tasks)

	assert.Equal(t, int32(20), n.Load())
	s := p.Stats()
	assert.Equal(t, int64(20), s.Submitted+s.Inline)
}

func TestPool_RunFallsBackInlineWhenOverloaded(t *testing.T) {
	p, err := NewPool("tiny", &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func() { <-block }))

	var ran atomic.Bool
	p.Run([]func(){func() { ran.Store(true) }})
	close(block)

	assert.True(t, ran.Load())
	assert.Equal(t, int64(1), p.Stats().Inline)
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestPool_SubmitAfterRelease(t *testing.T) {
	p, err := NewPool("closed", nil)
	require.NoError(t, err)
	p.Release()
	p.Release()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.Equal(t, "closed", p.Name())
}
