package wsloop

import (
	"github.com/gorilla/websocket"

	"github.com/lanikai/packetstream"
)

// Sink is a terminal packetstream.Processor that writes every packet it
// receives to a websocket connection as a binary message. It is meant to
// be attached downstream of a Stream.SynchronizeOutput(loop) SyncQueue, so
// writes happen on loop's goroutine rather than whichever source thread
// produced the packet.
type Sink struct {
	packetstream.NoopStateObserver

	emitter packetstream.PacketSignal
	loop    *Loop
}

// NewSink builds a Sink that writes to loop's connection.
func NewSink(loop *Loop) *Sink {
	return &Sink{loop: loop}
}

func (s *Sink) Emitter() *packetstream.PacketSignal { return &s.emitter }

// Accepts reports whether the underlying loop is still open.
func (s *Sink) Accepts(packetstream.Packet) bool {
	s.loop.mu.Lock()
	defer s.loop.mu.Unlock()
	return !s.loop.closed
}

// Process writes packet's bytes to the websocket connection and forwards
// it unchanged through its own emitter, so it can still be chained ahead
// of further processors (e.g. a logging tap).
func (s *Sink) Process(packet packetstream.Packet) {
	if err := s.loop.conn.WriteMessage(websocket.BinaryMessage, packet.Bytes()); err != nil {
		log.Warn("write: %v", err)
	}
	s.emitter.Emit(packetstream.PacketEvent{Sender: s, Packet: packet})
}
