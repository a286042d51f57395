package ssdp

import (
	"net"
	"sync"
	"time"
)

// fakePacketConn is an in-memory net.PacketConn for exercising the
// searcher, listener and notifier without touching the network.
type fakePacketConn struct {
	mu            sync.Mutex
	incoming      chan fakePacket
	deadlineCh    chan struct{}
	deadlineReset chan struct{}
	deadlineTimer *time.Timer
	closed        chan struct{}
	closeOnce     sync.Once
	sent          [][]byte
	onWrite       func(data []byte, dest net.Addr)
}

type fakePacket struct {
	data []byte
	addr net.Addr
}

func newFakePacketConn() *fakePacketConn {
	return &fakePacketConn{
		incoming: make(chan fakePacket, 64),
		closed:   make(chan struct{}),
	}
}

// deliver queues a datagram for the next ReadFrom.
func (c *fakePacketConn) deliver(data []byte, addr net.Addr) {
	select {
	case c.incoming <- fakePacket{data: data, addr: addr}:
	case <-c.closed:
	}
}

// sentPayloads returns a copy of everything written so far.
func (c *fakePacketConn) sentPayloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

type fakeTimeoutError struct{}

func (fakeTimeoutError) Error() string   { return "i/o timeout" }
func (fakeTimeoutError) Timeout() bool   { return true }
func (fakeTimeoutError) Temporary() bool { return true }

func (c *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		c.mu.Lock()
		deadline := c.deadlineCh
		reset := c.deadlineReset
		c.mu.Unlock()

		if deadline == nil {
			deadline = make(chan struct{}) // never fires
		}

		select {
		case pkt := <-c.incoming:
			n := copy(p, pkt.data)
			return n, pkt.addr, nil
		case <-deadline:
			return 0, nil, fakeTimeoutError{}
		case <-reset:
			// A new deadline applies to this blocked read too.
			continue
		case <-c.closed:
			return 0, nil, net.ErrClosed
		}
	}
}

func (c *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)

	c.mu.Lock()
	c.sent = append(c.sent, data)
	handler := c.onWrite
	c.mu.Unlock()

	if handler != nil {
		handler(data, addr)
	}
	return len(p), nil
}

func (c *fakePacketConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakePacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: 0}
}

func (c *fakePacketConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *fakePacketConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
		c.deadlineTimer = nil
	}
	ch := make(chan struct{})
	c.deadlineCh = ch
	if c.deadlineReset != nil {
		close(c.deadlineReset)
	}
	c.deadlineReset = make(chan struct{})
	if !t.IsZero() {
		d := time.Until(t)
		if d <= 0 {
			close(ch)
		} else {
			c.deadlineTimer = time.AfterFunc(d, func() { close(ch) })
		}
	}
	return nil
}

func (c *fakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

var testPeerAddr = &net.UDPAddr{IP: net.ParseIP("192.0.2.5"), Port: 1900}
