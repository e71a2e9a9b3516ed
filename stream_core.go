package packetstream

import (
	"io"
	"sync"

	"github.com/lanikai/packetstream/internal/logging"
)

var log = logging.DefaultLogger.WithTag("packetstream")

// StreamCore is the internal engine behind a Stream: it holds the
// registered sources and processors, the current lifecycle state, the
// pending-state queue, the captured error (if any), and the two locks
// that make dispatch and lifecycle commands thread-safe.
//
// A StreamCore is always owned by exactly one Stream; application code
// never constructs one directly.
type StreamCore struct {
	// mu guards sources, processors, state, the pending-state queue, the
	// error slot, the stream back-reference and closeOnError. Client data
	// and name live on Stream, under Stream.mu.
	mu sync.Mutex

	// procMutex serializes the "drain pending states + run the processor
	// chain" region of dispatch against itself and against start/stop/
	// close's source-lifecycle and teardown work.
	procMutex sync.Mutex

	sources    []AdapterReference
	processors []AdapterReference

	state State

	pendingStates []State

	err error

	closeOnError bool

	// stream is a non-owning back-reference used to route the StateChange
	// and Error signals, to deliver packets on the stream's outbound
	// emitter, and to call Stream.Close on closeOnError. It is kept
	// through Close and cleared by Stream.Destroy.
	stream *Stream

	// chainWired and chainSubs record the Subscriptions created by setup, so teardown
	// can detach exactly what setup attached (setup/teardown are
	// balanced, invariant 5).
	chainWired bool
	chainSubs  []chainSub
}

type chainSub struct {
	signal *PacketSignal
	sub    Subscription
}

func newStreamCore() *StreamCore {
	return &StreamCore{state: StateNone}
}

// currentState returns the current state under lock.
func (c *StreamCore) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamCore) stateEquals(s State) bool {
	return c.currentState() == s
}

// setState records the transition, enqueues it for adapter observation,
// and emits the StateChange signal. It is the sole mutator of state.
func (c *StreamCore) setState(newState State) {
	c.mu.Lock()
	oldState := c.state
	c.state = newState
	c.pendingStates = append(c.pendingStates, newState)
	stream := c.stream
	c.mu.Unlock()

	log.Debug("state: %v => %v", oldState, newState)

	if stream != nil {
		stream.stateChange.Emit(StateChangeEvent{Stream: stream, New: newState, Old: oldState})
	}
}

func (c *StreamCore) assertNotActive() {
	if s := c.currentState(); s == StateActive || s == StateLocked {
		panic(ErrMutationWhileActive)
	}
}

// --- registration (4.2.1) ---

func (c *StreamCore) attachSource(adapter Adapter, freePointer, syncState bool) {
	c.assertNotActive()

	if syncState {
		if _, ok := adapter.(Startable); !ok {
			panic(ErrContractViolation)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, AdapterReference{
		Adapter:     adapter,
		Order:       len(c.sources),
		FreePointer: freePointer,
		SyncState:   syncState,
		kind:        sourceKind,
	})
	sortRefs(c.sources)
}

func (c *StreamCore) attachSourceSignal(source *PacketSignal) {
	c.attachSource(newSignalAdapter(source), true, false)
}

func (c *StreamCore) detachSource(adapter Adapter) bool {
	c.assertNotActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ref := range c.sources {
		if ref.Adapter == adapter {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return true
		}
	}
	return false
}

func (c *StreamCore) detachSourceSignal(source *PacketSignal) bool {
	c.assertNotActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ref := range c.sources {
		if sa, ok := ref.Adapter.(*signalAdapter); ok && sa.emitter == source {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return true
		}
	}
	return false
}

func (c *StreamCore) attach(proc Processor, order int, freePointer bool) {
	if order < 0 || order > reservedSyncOrder {
		panic("packetstream: order must be in [0, 101]")
	}
	c.assertNotActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	if order == appendOrder {
		order = len(c.processors)
	}
	c.processors = append(c.processors, AdapterReference{
		Adapter:     proc,
		Processor:   proc,
		Order:       order,
		FreePointer: freePointer,
		kind:        processorKind,
	})
	sortRefs(c.processors)
}

func (c *StreamCore) detach(proc Processor) bool {
	c.assertNotActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ref := range c.processors {
		if ref.Processor == proc {
			c.processors = append(c.processors[:i], c.processors[i+1:]...)
			return true
		}
	}
	return false
}

// --- setup / teardown (4.2.2) ---

func (c *StreamCore) setup() (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause := recoveredError(r)
			log.Error("cannot start stream: %v", cause)
			c.setState(StateError)
			err = newSetupFailure(cause)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastProc Processor
	for _, ref := range c.processors {
		thisProc := ref.Processor
		if lastProc != nil {
			sub := lastProc.Emitter().Attach(func(ev PacketEvent) { thisProc.Process(ev.Packet) })
			c.chainSubs = append(c.chainSubs, chainSub{signal: lastProc.Emitter(), sub: sub})
		}
		lastProc = thisProc
	}
	if lastProc != nil {
		sub := lastProc.Emitter().Attach(func(ev PacketEvent) { c.emit(ev.Packet) })
		c.chainSubs = append(c.chainSubs, chainSub{signal: lastProc.Emitter(), sub: sub})
	}

	for _, ref := range c.sources {
		src := ref.Adapter
		sub := src.Emitter().Attach(func(ev PacketEvent) { c.process(ev.Packet) })
		c.chainSubs = append(c.chainSubs, chainSub{signal: src.Emitter(), sub: sub})
	}

	c.chainWired = true
	return nil
}

func (c *StreamCore) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.chainWired {
		return
	}
	for _, cs := range c.chainSubs {
		cs.signal.Detach(cs.sub)
	}
	c.chainSubs = nil
	c.chainWired = false
}

// --- cleanup (4.2.3) ---

func (c *StreamCore) cleanup() {
	if !c.stateEquals(StateNone) && !c.stateEquals(StateClosed) && !c.stateEquals(StateError) {
		panic("packetstream: cleanup requires state None, Closed, or Error")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ref := range c.sources {
		if ref.FreePointer {
			if closer, ok := ref.Adapter.(io.Closer); ok {
				_ = closer.Close()
			}
		}
	}
	c.sources = nil

	for _, ref := range c.processors {
		if ref.FreePointer {
			if closer, ok := ref.Adapter.(io.Closer); ok {
				_ = closer.Close()
			}
		}
	}
	c.processors = nil
}

// --- dispatch (4.2.4 / 4.2.5) ---

func (c *StreamCore) process(packet Packet) {
	defer func() {
		if r := recover(); r != nil {
			cause := recoveredError(r)
			log.Error("processor error: %v", cause)

			c.setState(StateError)

			err := newProcessorFailure(cause)
			c.mu.Lock()
			c.err = err
			stream := c.stream
			closeOnError := c.closeOnError
			c.mu.Unlock()

			if stream != nil {
				stream.errorSignal.Emit(ErrorEvent{Stream: stream, Err: err})
			}
			if closeOnError && stream != nil {
				stream.Close()
			}
		}
	}()

	if !c.stateEquals(StateActive) || packet.Flags().Has(FlagNoModify) {
		c.emit(packet)
		return
	}

	c.procMutex.Lock()
	defer c.procMutex.Unlock()

	c.synchronizeStates()

	c.mu.Lock()
	var firstProc Processor
	if len(c.processors) > 0 {
		firstProc = c.processors[0].Processor
	}
	c.mu.Unlock()

	if firstProc != nil {
		if firstProc.Accepts(packet) {
			firstProc.Process(packet)
			return
		}
		log.Warn("source packet rejected: %v: %v", firstProc, packet.ClassName())
	}

	c.emit(packet)
}

// synchronizeStates drains the pending-state queue, delivering each
// queued state to every registered adapter exactly once: sources in
// registration order, then processors in chain order (ascending Order),
// not in the order the processors were attached. Must be called with
// procMutex held.
func (c *StreamCore) synchronizeStates() {
	for {
		c.mu.Lock()
		if len(c.pendingStates) == 0 {
			c.mu.Unlock()
			return
		}
		state := c.pendingStates[0]
		c.pendingStates = c.pendingStates[1:]
		adapters := c.allAdapters()
		c.mu.Unlock()

		for _, ref := range adapters {
			ref.Adapter.OnStreamStateChange(state)
		}
	}
}

// allAdapters returns sources followed by processors. Caller must hold mu.
func (c *StreamCore) allAdapters() []AdapterReference {
	all := make([]AdapterReference, 0, len(c.sources)+len(c.processors))
	all = append(all, c.sources...)
	all = append(all, c.processors...)
	return all
}

func (c *StreamCore) emit(packet Packet) {
	stream := c.stream
	state := c.currentState()

	if state != StateActive {
		log.Debug("dropping late packet: %v", state)
		return
	}

	if stream == nil || !stream.emitter.Enabled() {
		log.Debug("dropping packet: no subscribers: %v", state)
		return
	}

	stream.emitter.Emit(PacketEvent{Sender: stream, Packet: packet})
}

// --- source lifecycle (4.2.7) ---

func (c *StreamCore) startSources() {
	c.mu.Lock()
	sources := append([]AdapterReference(nil), c.sources...)
	c.mu.Unlock()

	for _, ref := range sources {
		if !ref.SyncState {
			continue
		}
		startable, ok := ref.Adapter.(Startable)
		if !ok {
			panic(ErrContractViolation)
		}
		if err := startable.Start(); err != nil {
			log.Error("failed to start source: %v", err)
		}
	}
}

func (c *StreamCore) stopSources() {
	c.mu.Lock()
	sources := append([]AdapterReference(nil), c.sources...)
	c.mu.Unlock()

	for _, ref := range sources {
		if !ref.SyncState {
			continue
		}
		startable, ok := ref.Adapter.(Startable)
		if !ok {
			panic(ErrContractViolation)
		}
		if err := startable.Stop(); err != nil {
			log.Error("failed to stop source: %v", err)
		}
	}
}

// --- introspection ---

func (c *StreamCore) numSources() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sources)
}

func (c *StreamCore) numProcessors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processors)
}

func (c *StreamCore) errorValue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *StreamCore) setStream(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = s
}

// signalAdapter wraps a bare PacketSignal as a minimal Adapter, used by
// attachSourceSignal to register an external signal as a source without
// requiring callers to implement the full Adapter interface themselves.
type signalAdapter struct {
	NoopStateObserver
	emitter *PacketSignal
}

func newSignalAdapter(emitter *PacketSignal) *signalAdapter {
	return &signalAdapter{emitter: emitter}
}

func (a *signalAdapter) Emitter() *PacketSignal { return a.emitter }
