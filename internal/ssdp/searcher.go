package ssdp

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/logging"
)

const (
	// DefaultResponseWait is how long a search collects responses. It also
	// sets the MX header, clamped to the 1..5 range the protocol allows.
	DefaultResponseWait = 5 * time.Second

	// DefaultMSearchCount is how many copies of each M-SEARCH are sent.
	// UDP on a busy LAN loses datagrams; devices that miss the first
	// request catch a repeat.
	DefaultMSearchCount = 2
)

// Searcher performs active SSDP discovery: it multicasts M-SEARCH
// requests and collects the unicast responses that arrive before the
// deadline. With Broadcast set it targets 255.255.255.255 instead, a
// non-standard compatibility fallback for devices that never joined the
// multicast group.
type Searcher struct {
	// ResponseWait is the collection deadline; DefaultResponseWait when 0.
	ResponseWait time.Duration

	// TTL is the IP multicast TTL; DefaultTTL when 0.
	TTL int

	// MSearchCount is how many M-SEARCH datagrams to send;
	// DefaultMSearchCount when 0.
	MSearchCount int

	// Broadcast switches the destination to the limited-broadcast address.
	Broadcast bool

	// conn and dest override the socket and destination. Tests inject
	// in-memory conns here; when conn is nil a fresh ephemeral socket is
	// opened per search.
	conn net.PacketConn
	dest net.Addr
}

// NewSearcher returns a multicast searcher with protocol defaults.
func NewSearcher() *Searcher {
	return &Searcher{
		ResponseWait: DefaultResponseWait,
		TTL:          DefaultTTL,
		MSearchCount: DefaultMSearchCount,
	}
}

// NewBroadcastSearcher returns a searcher that transmits to
// 255.255.255.255:1900. Timing, deduplication and deadline behaviour
// mirror the multicast searcher exactly.
func NewBroadcastSearcher() *Searcher {
	s := NewSearcher()
	s.Broadcast = true
	return s
}

// Search runs one discovery pass and returns the records collected before
// the deadline, in arrival order, deduplicated by USN. An empty LAN
// yields an empty slice after ResponseWait, not an error.
func (s *Searcher) Search(ctx context.Context, target SearchTarget) ([]*DiscoveryRecord, error) {
	ch, err := s.SearchChan(ctx, target)
	if err != nil {
		return nil, err
	}

	var records []*DiscoveryRecord
	for record := range ch {
		records = append(records, record)
	}
	return records, nil
}

// SearchChan runs one discovery pass, streaming records as they arrive.
// The channel closes when the deadline expires or ctx is cancelled.
func (s *Searcher) SearchChan(ctx context.Context, target SearchTarget) (<-chan *DiscoveryRecord, error) {
	wait := s.ResponseWait
	if wait <= 0 {
		wait = DefaultResponseWait
	}
	count := s.MSearchCount
	if count <= 0 {
		count = DefaultMSearchCount
	}

	conn := s.conn
	if conn == nil {
		var err error
		conn, err = openSendSocket(s.TTL, s.Broadcast)
		if err != nil {
			return nil, err
		}
	}

	dest := s.dest
	if dest == nil {
		address := MulticastAddress
		if s.Broadcast {
			address = BroadcastAddress
		}
		var err error
		dest, err = resolveDestination(address)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	request := &MSearch{Target: target, MX: clampMX(wait)}
	payload := request.Encode()

	// First send happens before the deadline starts ticking; a search that
	// cannot transmit at all is an error, not an empty result.
	if _, err := conn.WriteTo(payload, dest); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send M-SEARCH: %w", err)
	}
	logging.Debug("M-SEARCH sent",
		zap.String("target", target.Render()),
		zap.String("dest", dest.String()),
		zap.Bool("broadcast", s.Broadcast),
	)

	deadline := time.Now().Add(wait)
	_ = conn.SetReadDeadline(deadline)

	// Repeat sends with jitter while responses are being collected.
	go resendLoop(ctx, conn, dest, payload, count-1)

	// Unblock the read loop early if the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	out := make(chan *DiscoveryRecord)
	go func() {
		defer close(out)
		defer stop()
		defer func() { _ = conn.Close() }()

		seen := make(map[string]bool)
		buf := make([]byte, maxDatagramSize)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				// Deadline or cancellation: the pass is complete.
				return
			}

			data := make([]byte, n)
			copy(data, buf[:n])
			remote := ""
			if addr != nil {
				remote = addr.String()
			}
			logging.LogDatagram("M-SEARCH response received", remote, data)

			msg, err := Decode(data)
			if err != nil {
				logging.Debug("Dropping malformed search response",
					zap.String("remote_addr", remote),
					zap.Error(err),
				)
				continue
			}
			response, ok := msg.(*SearchResponse)
			if !ok {
				continue
			}
			if seen[response.Record.USN] {
				continue
			}
			seen[response.Record.USN] = true

			select {
			case out <- response.Record:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// resendLoop sends the remaining M-SEARCH copies, sleeping a short random
// interval between sends to avoid synchronised loss.
func resendLoop(ctx context.Context, conn net.PacketConn, dest net.Addr, payload []byte, remaining int) {
	for i := 0; i < remaining; i++ {
		jitter := time.Duration(50+rand.Intn(151)) * time.Millisecond
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return
		}
		if _, err := conn.WriteTo(payload, dest); err != nil {
			logging.Warn("M-SEARCH resend failed", zap.Error(err))
			return
		}
	}
}

// clampMX converts the response wait to an MX header value in the 1..5
// range the protocol permits.
func clampMX(wait time.Duration) int {
	mx := int(wait / time.Second)
	if mx < 1 {
		mx = 1
	}
	if mx > 5 {
		mx = 5
	}
	return mx
}
