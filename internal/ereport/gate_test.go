package ereport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_AdmitsOncePerWindow(t *testing.T) {
	fc := newFakeCache(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	g := NewGate(fc, 3*time.Second)
	ctx := context.Background()

	assert.True(t, g.Admit(ctx, "hash:a"))
	assert.False(t, g.Admit(ctx, "hash:a"))
	assert.False(t, g.Admit(ctx, "hash:a"))
	// other signatures are independent
	assert.True(t, g.Admit(ctx, "hash:b"))

	fc.advance(3 * time.Second)
	assert.True(t, g.Admit(ctx, "hash:a"))
}

func TestGate_SuppressedCallsDoNotExtendWindow(t *testing.T) {
	fc := newFakeCache(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	g := NewGate(fc, 10*time.Second)
	ctx := context.Background()

	assert.True(t, g.Admit(ctx, "hash:a"))
	fc.advance(9 * time.Second)
	assert.False(t, g.Admit(ctx, "hash:a"))
	fc.advance(time.Second)
	assert.True(t, g.Admit(ctx, "hash:a"))
}

func TestGate_ConcurrentAdmitsExactlyOne(t *testing.T) {
	fc := newFakeCache(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	g := NewGate(fc, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(context.Background(), "hash:burst") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted.Load())
}

func TestGate_FailsOpen(t *testing.T) {
	fc := newFakeCache(time.Now())
	fc.err = errors.New("connection refused")
	g := NewGate(fc, time.Minute)

	assert.True(t, g.Admit(context.Background(), "hash:a"))
	assert.True(t, g.Admit(context.Background(), "hash:a"))
}

func TestGate_Release(t *testing.T) {
	fc := newFakeCache(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	g := NewGate(fc, time.Minute)
	ctx := context.Background()

	assert.True(t, g.Admit(ctx, "hash:a"))
	assert.False(t, g.Admit(ctx, "hash:a"))
	g.Release(ctx, "hash:a")
	assert.True(t, g.Admit(ctx, "hash:a"))
}
