package packetstream

import "sync"

// Option configures a Stream at construction time.
type Option func(*Stream)

// WithName sets the stream's diagnostic name.
func WithName(name string) Option {
	return func(s *Stream) { s.name = name }
}

// WithCloseOnError causes the stream to automatically call Close after a
// processor error is captured.
func WithCloseOnError(enabled bool) Option {
	return func(s *Stream) { s.core.closeOnError = enabled }
}

// WithClientData attaches arbitrary application data to the stream,
// retrievable via ClientData.
func WithClientData(data interface{}) Option {
	return func(s *Stream) { s.clientData = data }
}

// Stream is the outward-facing façade over a StreamCore: user-visible
// lifecycle commands, attach/detach, write overloads, and introspection.
// A Stream owns exactly one StreamCore.
type Stream struct {
	core *StreamCore

	mu         sync.Mutex
	name       string
	clientData interface{}

	emitter     PacketSignal
	stateChange Signal[StateChangeEvent]
	closeSignal Signal[*Stream]
	errorSignal Signal[ErrorEvent]

	closeOnce sync.Once
}

// NewStream creates a stream in state None.
func NewStream(opts ...Option) *Stream {
	s := &Stream{core: newStreamCore()}
	s.core.setStream(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emitter returns the stream's outbound packet signal, to which
// subscribers attach to receive dispatched packets.
func (s *Stream) Emitter() *PacketSignal { return &s.emitter }

// StateChange returns the signal fired synchronously from setState,
// before adapters observe the transition.
func (s *Stream) StateChange() *Signal[StateChangeEvent] { return &s.stateChange }

// CloseSignal returns the signal fired at most once per lifecycle, when
// the stream first enters Closed.
func (s *Stream) CloseSignal() *Signal[*Stream] { return &s.closeSignal }

// ErrorSignal returns the signal fired when a processor failure is
// captured during dispatch.
func (s *Stream) ErrorSignal() *Signal[ErrorEvent] { return &s.errorSignal }

// Lock freezes the stream before it has ever been started. Returns false
// if the stream is not in state None.
func (s *Stream) Lock() bool {
	if !s.core.stateEquals(StateNone) {
		return false
	}
	s.core.setState(StateLocked)
	return true
}

// Start wires the processor chain, transitions to Active, and starts any
// synchronized sources. Idempotent if already Active.
func (s *Stream) Start() error {
	if s.core.stateEquals(StateActive) {
		log.Debug("start: already active")
		return nil
	}

	if err := s.core.setup(); err != nil {
		return err
	}

	s.core.setState(StateActive)

	s.core.procMutex.Lock()
	defer s.core.procMutex.Unlock()
	s.core.startSources()
	return nil
}

// Stop transitions through Stopping to Stopped and stops synchronized
// sources. Idempotent if already stopped, stopping, or closed.
func (s *Stream) Stop() {
	if s.core.stateEquals(StateStopped) ||
		s.core.stateEquals(StateStopping) ||
		s.core.stateEquals(StateClosed) {
		log.Debug("stop: already stopped")
		return
	}

	s.core.setState(StateStopping)
	s.core.setState(StateStopped)

	s.core.procMutex.Lock()
	defer s.core.procMutex.Unlock()
	s.core.stopSources()
}

// Pause transitions to Paused from any state.
func (s *Stream) Pause() {
	s.core.setState(StatePaused)
}

// Resume transitions back to Active. No-op unless currently Paused.
func (s *Stream) Resume() {
	if !s.core.stateEquals(StatePaused) {
		log.Debug("resume: not paused")
		return
	}
	s.core.setState(StateActive)
}

// Reset transitions through Resetting back to Active.
func (s *Stream) Reset() {
	s.core.setState(StateResetting)
	s.core.setState(StateActive)
}

// Close gracefully stops the stream (if running), transitions to Closed,
// tears down the processor chain, drains any remaining pending states,
// and fires the Close signal. Idempotent: calling Close any number of
// times after the first has no further effect and the Close signal fires
// at most once.
func (s *Stream) Close() {
	if s.core.stateEquals(StateNone) || s.core.stateEquals(StateClosed) {
		log.Debug("close: already closed")
		return
	}

	if !s.core.stateEquals(StateStopped) && !s.core.stateEquals(StateStopping) {
		s.Stop()
	}

	s.core.setState(StateClosed)

	func() {
		s.core.procMutex.Lock()
		defer s.core.procMutex.Unlock()
		s.core.teardown()
		s.core.synchronizeStates()
	}()

	s.closeOnce.Do(func() {
		s.closeSignal.Emit(s)
	})
}

// Destroy is the Go analogue of the original destructor: it closes the
// stream if necessary, destroys every owned (FreePointer) adapter, and
// clears the stream's back-reference from its core. A Stream must not be
// used again after Destroy.
func (s *Stream) Destroy() {
	s.Close()
	s.core.cleanup()
	s.core.setStream(nil)
}

// AttachSource registers a source adapter. order is implicit
// (registration order); pass freePointer=true to have the stream destroy
// the adapter on Destroy, and syncState=true to have the stream drive
// its Start/Stop lifecycle (the adapter must implement Startable).
func (s *Stream) AttachSource(adapter Adapter, freePointer, syncState bool) {
	s.core.attachSource(adapter, freePointer, syncState)
}

// AttachSourceSignal wraps an external PacketSignal as an owned source
// adapter and registers it.
func (s *Stream) AttachSourceSignal(source *PacketSignal) {
	s.core.attachSourceSignal(source)
}

// DetachSource removes a previously attached source adapter. Ownership
// reverts to the caller regardless of the freePointer flag it was
// registered with. Returns false if not found.
func (s *Stream) DetachSource(adapter Adapter) bool {
	return s.core.detachSource(adapter)
}

// DetachSourceSignal removes a source previously attached via
// AttachSourceSignal.
func (s *Stream) DetachSourceSignal(source *PacketSignal) bool {
	return s.core.detachSourceSignal(source)
}

// Attach registers a processor at the given order (0 uses the current
// processor count as the order; 101 is reserved for the synchronized
// output terminal installed by SynchronizeOutput).
func (s *Stream) Attach(proc Processor, order int, freePointer bool) {
	s.core.attach(proc, order, freePointer)
}

// Detach removes a previously attached processor. Returns false if not
// found.
func (s *Stream) Detach(proc Processor) bool {
	return s.core.detach(proc)
}

// Write wraps data in a RawPacket and dispatches it.
func (s *Stream) Write(data []byte, flags Flags) {
	p := NewRawPacket(data, flags)
	s.core.process(p)
}

// WritePacket dispatches an already-constructed packet.
func (s *Stream) WritePacket(packet Packet) {
	s.core.process(packet)
}

// SynchronizeOutput installs a SyncQueue processor, bound to loop, as the
// terminal processor (order 101). Requires state != Active.
func (s *Stream) SynchronizeOutput(loop EventLoop) *SyncQueue {
	s.core.assertNotActive()
	sq := NewSyncQueue(loop)
	s.Attach(sq, reservedSyncOrder, true)
	s.StateChange().Attach(func(ev StateChangeEvent) {
		if ev.New == StateClosed {
			sq.cancel()
		}
	})
	return sq
}

// Locked reports whether the stream is in state Locked.
func (s *Stream) Locked() bool { return s.core.stateEquals(StateLocked) }

// Active reports whether the stream is in state Active.
func (s *Stream) Active() bool { return s.core.stateEquals(StateActive) }

// Closed reports whether the stream has reached a terminal state (Closed
// or Error).
func (s *Stream) Closed() bool {
	return s.core.stateEquals(StateClosed) || s.core.stateEquals(StateError)
}

// Stopped reports whether the stream is Stopping or Stopped.
func (s *Stream) Stopped() bool {
	return s.core.stateEquals(StateStopping) || s.core.stateEquals(StateStopped)
}

// State returns the current lifecycle state.
func (s *Stream) State() State { return s.core.currentState() }

// SetClientData replaces the stream's attached application data.
func (s *Stream) SetClientData(data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientData = data
}

// ClientData returns the stream's attached application data.
func (s *Stream) ClientData() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientData
}

// CloseOnError toggles automatic Close after a captured processor error.
func (s *Stream) CloseOnError(enabled bool) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	s.core.closeOnError = enabled
}

// Name returns the stream's diagnostic name.
func (s *Stream) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Error returns the captured processor error, if any.
func (s *Stream) Error() error {
	return s.core.errorValue()
}

// NumSources returns the number of registered sources.
func (s *Stream) NumSources() int { return s.core.numSources() }

// NumProcessors returns the number of registered processors.
func (s *Stream) NumProcessors() int { return s.core.numProcessors() }
