package packetstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachSourceSignalDispatchesIntoStream(t *testing.T) {
	s := NewStream()
	var external PacketSignal

	s.AttachSourceSignal(&external)
	require.NoError(t, s.Start())

	var received []byte
	s.Emitter().Attach(func(ev PacketEvent) { received = ev.Packet.Bytes() })

	external.Emit(PacketEvent{Packet: NewRawPacket([]byte{4, 5}, 0)})

	assert.Equal(t, []byte{4, 5}, received)
}

func TestDetachSourceSignalReturnsFalseWhenNotFound(t *testing.T) {
	s := NewStream()
	var unrelated PacketSignal
	assert.False(t, s.DetachSourceSignal(&unrelated))
}

func TestDetachReturnsFalseWhenNotFound(t *testing.T) {
	s := NewStream()
	assert.False(t, s.Detach(&recordingProcessor{}))
}

func TestDetachSourceReturnsTrueOnceRemoved(t *testing.T) {
	s := NewStream()
	src := &fakeStartableSource{}
	s.AttachSource(src, false, false)

	assert.True(t, s.DetachSource(src))
	assert.False(t, s.DetachSource(src), "second detach finds nothing left to remove")
	assert.Equal(t, 0, s.NumSources())
}

func TestTeardownDetachesExactlyWhatSetupAttached(t *testing.T) {
	s := NewStream()
	a := &recordingProcessor{}
	b := &recordingProcessor{}
	s.Attach(a, 1, false)
	s.Attach(b, 2, false)

	require.NoError(t, s.Start())
	assert.True(t, s.core.chainWired)
	assert.NotEmpty(t, s.core.chainSubs)

	s.Close()
	assert.False(t, s.core.chainWired)
	assert.Empty(t, s.core.chainSubs)

	// a's emitter should have no surviving subscriber from the old chain.
	a.emitter.Emit(PacketEvent{Packet: NewRawPacket(nil, 0)})
	assert.Empty(t, b.seen())
}

func TestOrderOutOfRangePanics(t *testing.T) {
	s := NewStream()
	assert.Panics(t, func() {
		s.Attach(&recordingProcessor{}, 200, false)
	})
	assert.Panics(t, func() {
		s.Attach(&recordingProcessor{}, -1, false)
	})
}

func TestCleanupPanicsWhileActive(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())
	assert.Panics(t, func() { s.core.cleanup() })
}
