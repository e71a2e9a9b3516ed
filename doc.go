// Package packetstream implements a reusable, in-process pipeline that
// routes discrete packets from one or more sources, through an ordered
// chain of processors, to a set of subscribers.
//
// A Stream owns exactly one internal StreamCore, which holds the source
// and processor adapter lists, the current lifecycle state, and the
// dispatch machinery. Packets flow synchronously on the calling
// goroutine: a source's emitter invokes the core's dispatch method,
// which threads the packet through the processor chain (in ascending
// Order, ties kept in registration order) before handing it to the outbound emitter that
// subscribers observe.
//
// The core makes no assumptions about payload format, transport, or
// codec; concrete sources and processors (RTP depacketizers, muxers,
// queueing adapters, and so on) are built on top of the Adapter and
// Processor interfaces defined here. See the adapters/ subdirectories
// for examples that wire the core to real transports.
package packetstream
