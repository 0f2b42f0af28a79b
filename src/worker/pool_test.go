package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitBackPressure(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	started := make(chan struct{})
	var ran atomic.Int32

	assert.True(t, p.Submit(context.Background(), "first", func(context.Context) {
		close(started)
		<-release
		ran.Add(1)
	}))
	<-started

	// one queued behind the running job, the next is dropped
	assert.True(t, p.Submit(context.Background(), "queued", func(context.Context) { ran.Add(1) }))
	assert.False(t, p.Submit(context.Background(), "dropped", func(context.Context) { ran.Add(1) }))

	close(release)
	p.Close()
	assert.Equal(t, int32(2), ran.Load())
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	p := New(1)
	done := make(chan struct{})
	assert.True(t, p.Submit(context.Background(), "boom", func(context.Context) { panic("boom") }))
	assert.Eventually(t, func() bool {
		return p.Submit(context.Background(), "after", func(context.Context) { close(done) })
	}, time.Second, time.Millisecond)
	<-done
	p.Close()
	p.Close()
}
