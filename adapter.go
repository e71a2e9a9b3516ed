package packetstream

import "sort"

// Adapter is the common shape of anything that emits or consumes packets
// within a stream's graph.
type Adapter interface {
	// Emitter returns the adapter's outbound packet signal. Sources emit
	// packets they produce; processors emit packets they have finished
	// transforming.
	Emitter() *PacketSignal

	// OnStreamStateChange is invoked once per state transition, in FIFO
	// order, from inside the dispatch goroutine. The default embeddable
	// implementation (NoopStateObserver) is a no-op; processors override
	// it to react to lifecycle transitions.
	OnStreamStateChange(state State)
}

// NoopStateObserver can be embedded by Adapter implementations that do
// not need to observe state transitions.
type NoopStateObserver struct{}

// OnStreamStateChange is a no-op.
func (NoopStateObserver) OnStreamStateChange(State) {}

// Processor is an Adapter that sits between a source and the stream's
// subscribers, gating and/or transforming packets.
type Processor interface {
	Adapter

	// Accepts is consulted only for the first processor in the chain; it
	// gates whether the packet enters the chain at all. Returning false
	// causes the packet to be proxied to subscribers unchanged.
	Accepts(packet Packet) bool

	// Process consumes a packet. Implementations must eventually emit
	// zero, one, or more packets via Emitter() to continue the chain (or
	// drop the packet entirely, e.g. a filtering or queueing processor).
	Process(packet Packet)
}

// Startable is implemented by sources whose lifecycle the stream should
// drive directly, in lock-step with the stream's own start/stop
// transitions. A source is only required to implement Startable when it
// is registered with syncState=true.
type Startable interface {
	Start() error
	Stop() error
}

// adapterKind tags what capabilities an AdapterReference's adapter
// actually has, so dispatch never needs a runtime type assertion to
// decide how to treat a registered adapter.
type adapterKind int

const (
	sourceKind adapterKind = iota
	processorKind
)

// reservedSyncOrder is the order value reserved for the terminal SyncQueue
// processor installed by Stream.SynchronizeOutput.
const reservedSyncOrder = 101

// appendOrder requests that attach() use the current processor count as
// the order, so processors attached with it keep their insertion order
// among themselves; a processor registered earlier with a higher order
// still sorts after it.
const appendOrder = 0

// AdapterReference is the registration record for one source or
// processor: the adapter itself, its ordering key, whether the stream
// owns (and must destroy) it, and whether the stream should drive its
// start/stop lifecycle.
type AdapterReference struct {
	Adapter     Adapter
	Processor   Processor // non-nil iff kind == processorKind
	Order       int
	FreePointer bool
	SyncState   bool

	kind adapterKind
}

// sortRefs sorts refs ascending by Order, breaking ties by leaving
// equal-order entries in their relative (insertion) position.
func sortRefs(refs []AdapterReference) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Order < refs[j].Order
	})
}
