package packetstream

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProcessor accepts every packet, appends its bytes to a
// shared log, and forwards it unchanged.
type recordingProcessor struct {
	NoopStateObserver
	emitter PacketSignal

	mu  sync.Mutex
	saw [][]byte
}

func (p *recordingProcessor) Emitter() *PacketSignal { return &p.emitter }
func (p *recordingProcessor) Accepts(Packet) bool    { return true }
func (p *recordingProcessor) Process(packet Packet) {
	p.mu.Lock()
	p.saw = append(p.saw, packet.Bytes())
	p.mu.Unlock()
	p.emitter.Emit(PacketEvent{Sender: p, Packet: packet})
}

func (p *recordingProcessor) seen() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.saw...)
}

// panickingProcessor always panics with the given cause.
type panickingProcessor struct {
	NoopStateObserver
	emitter PacketSignal
	cause   error
}

func (p *panickingProcessor) Emitter() *PacketSignal { return &p.emitter }
func (p *panickingProcessor) Accepts(Packet) bool    { return true }
func (p *panickingProcessor) Process(Packet)         { panic(p.cause) }

// fakeStartableSource is a source whose Start/Stop are observable, used
// to verify syncState wiring and the Startable contract.
type fakeStartableSource struct {
	NoopStateObserver
	emitter PacketSignal

	mu      sync.Mutex
	started int
	stopped int
}

func (s *fakeStartableSource) Emitter() *PacketSignal { return &s.emitter }
func (s *fakeStartableSource) Start() error {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
	return nil
}
func (s *fakeStartableSource) Stop() error {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	return nil
}

func (s *fakeStartableSource) counts() (started, stopped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.stopped
}

// closeTrackingProcessor records whether Close was called by cleanup.
type closeTrackingProcessor struct {
	NoopStateObserver
	emitter PacketSignal
	closed  bool
}

func (p *closeTrackingProcessor) Emitter() *PacketSignal { return &p.emitter }
func (p *closeTrackingProcessor) Accepts(Packet) bool    { return true }
func (p *closeTrackingProcessor) Process(Packet)         {}
func (p *closeTrackingProcessor) Close() error {
	p.closed = true
	return nil
}

func TestWriteDispatchesThroughProcessorChainInOrder(t *testing.T) {
	s := NewStream()
	a := &recordingProcessor{}
	b := &recordingProcessor{}
	s.Attach(a, 1, false)
	s.Attach(b, 2, false)

	var received []byte
	s.Emitter().Attach(func(ev PacketEvent) { received = ev.Packet.Bytes() })

	require.NoError(t, s.Start())
	s.Write([]byte{1, 2, 3}, 0)

	assert.Equal(t, [][]byte{{1, 2, 3}}, a.seen())
	assert.Equal(t, [][]byte{{1, 2, 3}}, b.seen())
	assert.Equal(t, []byte{1, 2, 3}, received)
}

func TestAttachWhileActivePanics(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())

	assert.PanicsWithValue(t, ErrMutationWhileActive, func() {
		s.Attach(&recordingProcessor{}, 0, false)
	})
}

func TestAttachSourceRequiresStartableWhenSyncState(t *testing.T) {
	s := NewStream()
	assert.PanicsWithValue(t, ErrContractViolation, func() {
		s.AttachSource(&recordingProcessor{}, false, true)
	})
}

func TestStartStartsSyncStateSources(t *testing.T) {
	s := NewStream()
	src := &fakeStartableSource{}
	s.AttachSource(src, false, true)

	require.NoError(t, s.Start())
	started, stopped := src.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 0, stopped)

	s.Stop()
	started, stopped = src.counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestProcessorPanicCapturesErrorAndFiresErrorSignal(t *testing.T) {
	s := NewStream()
	cause := errors.New("boom")
	s.Attach(&panickingProcessor{cause: cause}, 0, false)

	var got error
	s.ErrorSignal().Attach(func(ev ErrorEvent) { got = ev.Err })

	require.NoError(t, s.Start())
	s.Write([]byte{1}, 0)

	require.Error(t, got)
	var pf *ProcessorFailure
	assert.ErrorAs(t, got, &pf)
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, got, s.Error())
}

func TestCloseOnErrorClosesStream(t *testing.T) {
	s := NewStream(WithCloseOnError(true))
	s.Attach(&panickingProcessor{cause: errors.New("boom")}, 0, false)

	closed := false
	s.CloseSignal().Attach(func(*Stream) { closed = true })

	require.NoError(t, s.Start())
	s.Write([]byte{1}, 0)

	assert.True(t, closed)
	assert.True(t, s.Closed())
}

func TestCloseIsIdempotentAndSignalFiresOnce(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())

	fired := 0
	s.CloseSignal().Attach(func(*Stream) { fired++ })

	s.Close()
	s.Close()
	s.Close()

	assert.Equal(t, 1, fired)
}

func TestDestroyClosesOwnedAdapters(t *testing.T) {
	s := NewStream()
	p := &closeTrackingProcessor{}
	s.Attach(p, 0, true)

	require.NoError(t, s.Start())
	s.Destroy()

	assert.True(t, p.closed)
	assert.Equal(t, 0, s.NumProcessors())
}

func TestLockPreventsFurtherLocking(t *testing.T) {
	s := NewStream()
	assert.True(t, s.Lock())
	assert.False(t, s.Lock())
	assert.True(t, s.Locked())
}

func TestPauseAndResume(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())

	s.Pause()
	assert.Equal(t, StatePaused, s.State())

	s.Resume()
	assert.Equal(t, StateActive, s.State())
}

func TestResetReturnsToActive(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())
	s.Reset()
	assert.Equal(t, StateActive, s.State())
}

func TestAdaptersObserveEveryStateTransitionOnce(t *testing.T) {
	s := NewStream()
	p := &recordingStateProcessor{}
	s.Attach(p, 0, false)

	require.NoError(t, s.Start())
	s.Pause()
	s.Resume()
	s.Write([]byte{1}, 0)
	s.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Contains(t, p.states, StateActive)
	assert.Contains(t, p.states, StatePaused)
	assert.Contains(t, p.states, StateClosed)
	assert.Equal(t, []State{StateActive, StatePaused, StateActive, StateStopping, StateStopped, StateClosed}, p.states)
}

func TestSourceObservesStateTransitionsWithEmptyProcessorChain(t *testing.T) {
	s := NewStream()
	src := &recordingStateSource{}
	s.AttachSource(src, false, false)

	require.NoError(t, s.Start())
	s.Pause()
	s.Resume()
	s.Write([]byte{1}, 0)
	s.Close()

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Contains(t, src.states, StateActive)
	assert.Contains(t, src.states, StatePaused)
	assert.Contains(t, src.states, StateClosed)
}

type recordingStateSource struct {
	emitter PacketSignal
	mu      sync.Mutex
	states  []State
}

func (s *recordingStateSource) Emitter() *PacketSignal { return &s.emitter }
func (s *recordingStateSource) OnStreamStateChange(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

type recordingStateProcessor struct {
	emitter PacketSignal
	mu      sync.Mutex
	states  []State
}

func (p *recordingStateProcessor) Emitter() *PacketSignal { return &p.emitter }
func (p *recordingStateProcessor) Accepts(Packet) bool    { return true }
func (p *recordingStateProcessor) Process(packet Packet) {
	p.emitter.Emit(PacketEvent{Sender: p, Packet: packet})
}
func (p *recordingStateProcessor) OnStreamStateChange(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func TestFlagNoModifyBypassesProcessorChain(t *testing.T) {
	s := NewStream()
	p := &recordingProcessor{}
	s.Attach(p, 0, false)

	var received bool
	s.Emitter().Attach(func(PacketEvent) { received = true })

	require.NoError(t, s.Start())
	s.Write([]byte{9}, FlagNoModify)

	assert.Empty(t, p.seen(), "processor chain must be skipped for FlagNoModify packets")
	assert.True(t, received)
}

func TestSynchronizeOutputRequiresNotActive(t *testing.T) {
	s := NewStream()
	require.NoError(t, s.Start())

	assert.Panics(t, func() {
		s.SynchronizeOutput(&fakeLoop{})
	})
}

type fakeLoop struct {
	mu    sync.Mutex
	posts []func()
}

func (l *fakeLoop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.posts = append(l.posts, fn)
}

func (l *fakeLoop) drain() {
	l.mu.Lock()
	posts := l.posts
	l.posts = nil
	l.mu.Unlock()
	for _, fn := range posts {
		fn()
	}
}

func TestSynchronizeOutputRunsOnLoop(t *testing.T) {
	s := NewStream()
	loop := &fakeLoop{}
	sq := s.SynchronizeOutput(loop)

	var received []byte
	sq.Emitter().Attach(func(ev PacketEvent) { received = ev.Packet.Bytes() })

	require.NoError(t, s.Start())
	s.Write([]byte{7, 8}, 0)

	assert.Nil(t, received, "drain must not run until the loop processes it")
	loop.drain()
	assert.Equal(t, []byte{7, 8}, received)
}

func TestSynchronizeOutputCancelsOnClose(t *testing.T) {
	s := NewStream()
	loop := &fakeLoop{}
	sq := s.SynchronizeOutput(loop)

	require.NoError(t, s.Start())
	s.Close()

	assert.False(t, sq.Accepts(NewRawPacket(nil, 0)))
}
