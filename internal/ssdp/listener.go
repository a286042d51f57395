package ssdp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/logging"
)

// Listener passively observes NOTIFY announcements on the SSDP multicast
// group and fans them out to subscribers. It performs no deduplication;
// clients that care about unique devices deduplicate by USN.
type Listener struct {
	conn net.PacketConn

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	malformed atomic.Uint64
	errCh     chan error
	stopOnce  sync.Once
	done      chan struct{}
}

// NewListener opens the multicast socket on 0.0.0.0:1900 with the given
// TTL (DefaultTTL when <= 0) and returns a listener ready to Start.
func NewListener(ttl int) (*Listener, error) {
	conn, err := openMulticastListener(ttl)
	if err != nil {
		return nil, err
	}
	return NewListenerWithConn(conn), nil
}

// NewListenerWithConn builds a listener over an existing socket. Tests
// inject in-memory conns here.
func NewListenerWithConn(conn net.PacketConn) *Listener {
	return &Listener{
		conn:  conn,
		subs:  make(map[*Subscription]struct{}),
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}
}

// Start begins receiving datagrams. It returns immediately; announcements
// flow to subscriptions created via Subscribe.
func (l *Listener) Start() {
	go l.readLoop()
}

// Subscribe registers a new subscriber. Every announcement received after
// this call is delivered to the subscription's channels; delivery queues
// are unbounded, so a slow consumer delays nobody.
func (l *Listener) Subscribe() *Subscription {
	sub := &Subscription{
		alive:  newMailbox[*DiscoveryRecord](),
		byebye: newMailbox[*ByeByeNotify](),
	}
	sub.cancel = func() {
		l.mu.Lock()
		delete(l.subs, sub)
		l.mu.Unlock()
		sub.alive.close()
		sub.byebye.close()
	}

	l.mu.Lock()
	l.subs[sub] = struct{}{}
	l.mu.Unlock()
	return sub
}

// Err returns a channel that yields the terminal socket error, if the
// listener dies for any reason other than Stop.
func (l *Listener) Err() <-chan error {
	return l.errCh
}

// MalformedCount reports how many datagrams failed to decode and were
// dropped.
func (l *Listener) MalformedCount() uint64 {
	return l.malformed.Load()
}

// Stop closes the socket and all subscriptions.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()

		l.mu.Lock()
		subs := make([]*Subscription, 0, len(l.subs))
		for sub := range l.subs {
			subs = append(subs, sub)
		}
		l.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
	})
}

func (l *Listener) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Error("SSDP listener socket error", zap.Error(err))
			select {
			case l.errCh <- err:
			default:
			}
			l.Stop()
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		l.handleDatagram(data, addr)
	}
}

func (l *Listener) handleDatagram(data []byte, addr net.Addr) {
	remote := ""
	if addr != nil {
		remote = addr.String()
	}
	logging.LogDatagram("SSDP datagram received", remote, data)

	msg, err := Decode(data)
	if err != nil {
		l.malformed.Add(1)
		logging.Debug("Dropping malformed SSDP datagram",
			zap.String("remote_addr", remote),
			zap.Error(err),
		)
		return
	}

	switch m := msg.(type) {
	case *AliveNotify:
		l.publish(func(sub *Subscription) { sub.alive.push(m.Record) })
	case *ByeByeNotify:
		l.publish(func(sub *Subscription) { sub.byebye.push(m) })
	default:
		// M-SEARCH requests and unicast responses on the multicast group
		// are other participants' traffic, not ours.
	}
}

func (l *Listener) publish(deliver func(*Subscription)) {
	l.mu.Lock()
	subs := make([]*Subscription, 0, len(l.subs))
	for sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		deliver(sub)
	}
}

// Subscription is one subscriber's view of the notification streams. The
// alive and byebye channels are independent; no cross-channel ordering is
// guaranteed.
type Subscription struct {
	alive  *mailbox[*DiscoveryRecord]
	byebye *mailbox[*ByeByeNotify]
	cancel func()
	once   sync.Once
}

// Alive returns the stream of ssdp:alive announcements.
func (s *Subscription) Alive() <-chan *DiscoveryRecord {
	return s.alive.out
}

// ByeBye returns the stream of ssdp:byebye announcements.
func (s *Subscription) ByeBye() <-chan *ByeByeNotify {
	return s.byebye.out
}

// Close unsubscribes and closes both channels. Messages still queued and
// not yet received when Close is called may be discarded.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// mailbox is an unbounded FIFO feeding a channel. Pushes never block; a
// pump goroutine moves queued items to the out channel at the consumer's
// pace.
type mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
	done   chan struct{}
	out    chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		out:  make(chan T),
		done: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	go m.pump()
	return m
}

func (m *mailbox[T]) push(item T) {
	m.mu.Lock()
	if !m.closed {
		m.queue = append(m.queue, item)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

func (m *mailbox[T]) close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.done)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

func (m *mailbox[T]) pump() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 && m.closed {
			m.mu.Unlock()
			close(m.out)
			return
		}
		item := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		// The consumer may be gone once the subscription is closed; never
		// block forever on a send nobody will receive.
		select {
		case m.out <- item:
		case <-m.done:
			close(m.out)
			return
		}
	}
}
