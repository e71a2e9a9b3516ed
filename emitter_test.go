package packetstream

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalEmitInvokesAllHandlers(t *testing.T) {
	var sig Signal[int]
	var mu sync.Mutex
	var got []int

	for i := 0; i < 10; i++ {
		sig.Attach(func(v int) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, v)
		})
	}

	sig.Emit(42)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 10)
	for _, v := range got {
		assert.Equal(t, 42, v)
	}
}

func TestSignalDetachStopsDelivery(t *testing.T) {
	var sig Signal[int]
	calls := 0
	sub := sig.Attach(func(int) { calls++ })

	sig.Emit(1)
	sig.Detach(sub)
	sig.Emit(1)

	assert.Equal(t, 1, calls)
}

func TestSignalEnabled(t *testing.T) {
	var sig Signal[int]
	assert.False(t, sig.Enabled(), "no subscribers yet")

	sub := sig.Attach(func(int) {})
	assert.True(t, sig.Enabled())

	sig.Enable(false)
	assert.False(t, sig.Enabled())

	sig.Enable(true)
	assert.True(t, sig.Enabled())

	sig.Detach(sub)
	assert.False(t, sig.Enabled())
}

func TestSignalEmitSynchronous(t *testing.T) {
	var sig Signal[int]
	done := false
	sig.Attach(func(int) { done = true })
	sig.Emit(1)
	assert.True(t, done, "Emit must deliver to handlers before returning")
}

func TestSignalAttachDuringEmitDoesNotRace(t *testing.T) {
	var sig Signal[int]
	sig.Attach(func(int) {
		sig.Attach(func(int) {})
	})
	assert.NotPanics(t, func() { sig.Emit(1) })
}
