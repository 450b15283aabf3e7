package server

import (
	"log"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/classpulse/live/internal/platform/timeouts"
	"github.com/classpulse/live/internal/services/live/protocol"
)

const defaultOutboxSize = 64

// wsPeer queues outbound frames for one websocket. The router never writes
// to the socket itself; writeLoop drains the outbox in order.
type wsPeer struct {
	mu         sync.Mutex
	closed     bool
	overflowed bool
	outbox     chan protocol.Frame
	done       chan struct{}
}

func newWSPeer(size int) *wsPeer {
	if size <= 0 {
		size = defaultOutboxSize
	}
	return &wsPeer{
		outbox: make(chan protocol.Frame, size),
		done:   make(chan struct{}),
	}
}

// Send queues the frame without blocking. A full outbox means the client
// stopped reading; the peer is closed and the connection torn down.
func (p *wsPeer) Send(frame protocol.Frame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	select {
	case p.outbox <- frame:
		return true
	default:
		p.overflowed = true
		p.closed = true
		close(p.outbox)
		return false
	}
}

// finish stops accepting frames. Frames already queued are still written.
func (p *wsPeer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.outbox)
}

func (p *wsPeer) isOverflowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overflowed
}

// writeLoop writes queued frames until the outbox closes or a write fails,
// then closes the socket so the read loop unblocks.
func (p *wsPeer) writeLoop(conn *websocket.Conn) {
	defer close(p.done)
	defer func() {
		_ = conn.Close()
	}()

	for frame := range p.outbox {
		if p.isOverflowed() {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(timeouts.WSWrite))
		if err := websocket.JSON.Send(conn, frame); err != nil {
			log.Printf("live: write %s frame: %v", frame.Type, err)
			return
		}
	}
}

// wait blocks until writeLoop has returned.
func (p *wsPeer) wait() {
	<-p.done
}
