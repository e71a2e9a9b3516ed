// Package wsloop adapts a websocket connection into a packetstream.EventLoop.
//
// gorilla/websocket connections do not tolerate concurrent writers, but
// Stream.SynchronizeOutput hands its SyncQueue's drain function to
// whatever EventLoop the caller supplies, with no guarantee it won't be
// invoked from more than one dispatching source goroutine. Loop runs that
// drain, and any other work posted to it, one function at a time, so the
// underlying Conn only ever sees one writer.
package wsloop

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/lanikai/packetstream/internal/logging"
)

var log = logging.DefaultLogger.WithTag("wsloop")

// Loop runs posted functions one at a time for a websocket connection.
// It has no long-lived goroutine: Post starts a goroutine when work
// arrives on an idle loop, and that goroutine exits once the pending
// queue is empty. It implements packetstream.EventLoop.
type Loop struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending []func()
	running bool
	closed  bool
}

// New returns a Loop that serializes work for conn. The connection itself
// is never touched by Loop; it is carried so handlers posted to the loop
// (typically closures that call conn.WriteMessage) can rely on running
// exclusive of one another.
func New(conn *websocket.Conn) *Loop {
	return &Loop{conn: conn}
}

// Conn returns the websocket connection the loop was constructed with.
func (l *Loop) Conn() *websocket.Conn { return l.conn }

// Post schedules fn to run on the loop's goroutine. It never blocks the
// caller: if no drain is currently running, Post starts one; otherwise fn
// is appended to the pending queue and picked up by the in-flight drain.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		log.Debug("post after close, dropping")
		return
	}
	l.pending = append(l.pending, fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.run()
}

func (l *Loop) run() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from panic in posted work: %v", r)
		}
	}()
	fn()
}

// Close marks the loop closed. Work already posted still drains, but any
// further Post calls are silently dropped. Close does not touch the
// underlying connection; callers remain responsible for conn.Close.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}
