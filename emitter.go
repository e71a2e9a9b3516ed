package packetstream

import (
	"sort"
	"sync"
)

// Signal is a small synchronous multicast delegate list, in the spirit
// of the teacher's Broadcaster/Flow channel fan-out, but adapted to
// synchronous callback dispatch rather than buffered channels: the core
// requires packets and state changes to be delivered on the calling
// goroutine, in order, before Emit returns (spec section 5).
//
// Handlers are identified by an opaque Subscription so Detach does not
// rely on comparing function values, which Go does not support.
type Signal[T any] struct {
	mu       sync.RWMutex
	handlers map[Subscription]func(T)
	nextID   Subscription
	disabled bool
}

// Subscription identifies a handler previously registered with Attach.
type Subscription uint64

// Attach registers fn to be called on every future Emit. The returned
// Subscription can be passed to Detach to remove it again.
func (s *Signal[T]) Attach(fn func(T)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handlers == nil {
		s.handlers = make(map[Subscription]func(T))
	}
	s.nextID++
	id := s.nextID
	s.handlers[id] = fn
	return id
}

// Detach removes a previously attached handler. It is a no-op if sub is
// unknown (already detached, or zero value).
func (s *Signal[T]) Detach(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, sub)
}

// Enabled reports whether the signal currently has at least one
// subscriber and has not been explicitly disabled.
func (s *Signal[T]) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled && len(s.handlers) > 0
}

// Enable turns delivery on or off without detaching subscribers. A
// disabled signal silently drops Emit calls.
func (s *Signal[T]) Enable(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = !enabled
}

// Emit synchronously invokes every attached handler, in attachment
// order, on the calling goroutine.
func (s *Signal[T]) Emit(value T) {
	s.mu.RLock()
	if s.disabled || len(s.handlers) == 0 {
		s.mu.RUnlock()
		return
	}
	// Copy under the lock so a handler attaching/detaching during
	// dispatch cannot race the map being iterated. Subscriptions are
	// issued in increasing order, so sorting by id gives attachment order.
	ids := make([]Subscription, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(value)
	}
}

// PacketEvent is delivered by a PacketSignal: the adapter that produced
// the packet, and the packet itself.
type PacketEvent struct {
	Sender Adapter
	Packet Packet
}

// PacketSignal is the multicast signal every Adapter exposes via
// Emitter().
type PacketSignal = Signal[PacketEvent]

// StateChangeEvent is delivered by Stream.StateChange.
type StateChangeEvent struct {
	Stream   *Stream
	New, Old State
}

// ErrorEvent is delivered by Stream.Error.
type ErrorEvent struct {
	Stream *Stream
	Err    error
}
