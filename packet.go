package packetstream

import "sync/atomic"

// Flags is a bitset of recognized packet flags.
type Flags uint32

const (
	// FlagNoModify forbids processors from mutating the packet. A packet
	// carrying this flag bypasses the processor chain entirely and is
	// proxied straight to the outbound emitter.
	FlagNoModify Flags = 1 << iota
)

// Has reports whether all bits in want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Packet is the unit of transport through a Stream. Implementations may
// carry structured fields (timestamps, sequence numbers, codec metadata)
// beyond the payload the core cares about; the core treats packets
// abstractly via this interface.
type Packet interface {
	// Bytes returns the packet payload. Callers must not retain the
	// returned slice beyond the lifetime of the packet; use Clone to
	// obtain an independently owned copy.
	Bytes() []byte

	// Len returns len(Bytes()).
	Len() int

	// Flags returns the packet's flag bitset.
	Flags() Flags

	// ClassName returns a short symbolic name for diagnostics, e.g. the
	// concrete adapter or codec that produced the packet.
	ClassName() string

	// Clone returns an independent copy of the packet. Processors that
	// need to mutate a packet's payload and retain a reference must
	// clone first; the original may be backed by a shared, reference
	// counted buffer other consumers still observe.
	Clone() Packet
}

// sharedBuffer is a reference counted byte buffer, so a packet handed to
// several processors in sequence (or proxied to many subscribers) does
// not need to be copied up front. hold and release only adjust the
// count; the slice itself is not freed or cleared when the count reaches
// zero and is left to the garbage collector.
type sharedBuffer struct {
	data  []byte
	count int32
}

func newSharedBuffer(data []byte) *sharedBuffer {
	return &sharedBuffer{data: data, count: 1}
}

func (b *sharedBuffer) hold() {
	atomic.AddInt32(&b.count, 1)
}

func (b *sharedBuffer) release() {
	if b == nil {
		return
	}
	atomic.AddInt32(&b.count, -1)
}

// RawPacket is the concrete Packet implementation used internally for
// write(bytes) calls, and is available to adapters that have no richer
// packet type of their own.
type RawPacket struct {
	buf   *sharedBuffer
	flags Flags
	class string
}

// NewRawPacket wraps data in a RawPacket. data is borrowed: the caller
// must not mutate it after the packet enters the stream unless it owns
// the only reference.
func NewRawPacket(data []byte, flags Flags) *RawPacket {
	return &RawPacket{
		buf:   newSharedBuffer(data),
		flags: flags,
		class: "RawPacket",
	}
}

// NewRawPacketNamed is like NewRawPacket but sets a diagnostic class name.
func NewRawPacketNamed(name string, data []byte, flags Flags) *RawPacket {
	p := NewRawPacket(data, flags)
	p.class = name
	return p
}

func (p *RawPacket) Bytes() []byte  { return p.buf.data }
func (p *RawPacket) Len() int       { return len(p.buf.data) }
func (p *RawPacket) Flags() Flags   { return p.flags }
func (p *RawPacket) ClassName() string {
	if p.class == "" {
		return "RawPacket"
	}
	return p.class
}

// Clone returns a RawPacket with an independently owned copy of the
// payload bytes.
func (p *RawPacket) Clone() Packet {
	cp := make([]byte, len(p.buf.data))
	copy(cp, p.buf.data)
	return &RawPacket{
		buf:   newSharedBuffer(cp),
		flags: p.flags,
		class: p.class,
	}
}

// Release drops this packet's hold on its shared buffer. Adapters that
// fan a single incoming RawPacket out to multiple subscribers without
// cloning should Hold before handing out additional references and
// Release once each is done.
func (p *RawPacket) Release() {
	p.buf.release()
}

// Hold increments the shared buffer's reference count, for adapters that
// retain a reference to the packet beyond the call that delivered it.
func (p *RawPacket) Hold() {
	p.buf.hold()
}
