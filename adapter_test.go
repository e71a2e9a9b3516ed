package packetstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortRefsAscendingStable(t *testing.T) {
	refs := []AdapterReference{
		{Order: 5},
		{Order: 1},
		{Order: 1},
		{Order: 3},
	}
	// Only the resulting order keys are compared here; that ties keep
	// their relative order is checked by
	// TestSortRefsTieBreaksByInsertionOrder.
	sortRefs(refs)
	var orders []int
	for _, r := range refs {
		orders = append(orders, r.Order)
	}
	assert.Equal(t, []int{1, 1, 3, 5}, orders)
}

type fakeAdapter struct {
	NoopStateObserver
	emitter PacketSignal
}

func (a *fakeAdapter) Emitter() *PacketSignal { return &a.emitter }

func TestSortRefsTieBreaksByInsertionOrder(t *testing.T) {
	first := &fakeAdapter{}
	second := &fakeAdapter{}

	refs := []AdapterReference{
		{Order: 2, Adapter: first},
		{Order: 2, Adapter: second},
	}
	sortRefs(refs)
	assert.Same(t, first, refs[0].Adapter)
	assert.Same(t, second, refs[1].Adapter)
}
