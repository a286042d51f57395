package ssdp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tverberg/castpoint/internal/logging"
)

// DefaultMaxAge is the advertised cache lifetime for announcements.
const DefaultMaxAge = 1800 * time.Second

// Notifier announces a device's presence on the SSDP multicast group. It
// emits ssdp:alive immediately on Start and then periodically at half the
// advertised max-age, and a single ssdp:byebye on Stop.
type Notifier struct {
	// Target is the NT value to advertise, e.g. "upnp:rootdevice".
	Target string

	// USN is the unique service name of the advertisement.
	USN string

	// Location is the absolute URL of the device description document.
	Location string

	// Server is the OS/product identification string sent as SERVER;
	// "castpoint/1.0 UPnP/1.0" when empty.
	Server string

	// MaxAge is the advertised cache lifetime; DefaultMaxAge when 0.
	MaxAge time.Duration

	// TTL is the IP multicast TTL; DefaultTTL when 0.
	TTL int

	// conn and dest override the socket and destination for tests.
	conn net.PacketConn
	dest net.Addr

	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Start opens the send socket, emits the first alive announcement and
// schedules re-announcements every MaxAge/2.
func (n *Notifier) Start() error {
	if n.Target == "" || n.USN == "" || n.Location == "" {
		return fmt.Errorf("notifier requires Target, USN and Location")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopCh != nil {
		return fmt.Errorf("notifier already started")
	}

	if n.conn == nil {
		conn, err := openSendSocket(n.TTL, false)
		if err != nil {
			return err
		}
		n.conn = conn
	}
	if n.dest == nil {
		dest, err := resolveDestination(MulticastAddress)
		if err != nil {
			_ = n.conn.Close()
			n.conn = nil
			return err
		}
		n.dest = dest
	}

	n.stopCh = make(chan struct{})
	n.doneCh = make(chan struct{})

	go n.announceLoop()
	return nil
}

// Stop emits a single byebye announcement, closes the socket and waits
// for the announcement loop to exit.
func (n *Notifier) Stop() {
	n.mu.Lock()
	stopCh, doneCh := n.stopCh, n.doneCh
	n.mu.Unlock()
	if stopCh == nil {
		return
	}

	n.stopOnce.Do(func() {
		close(stopCh)
		<-doneCh

		byebye := &ByeByeNotify{Target: n.Target, USN: n.USN}
		if _, err := n.conn.WriteTo(byebye.Encode(), n.dest); err != nil {
			logging.Warn("Failed to send ssdp:byebye", zap.String("usn", n.USN), zap.Error(err))
		} else {
			logging.Info("Sent ssdp:byebye", zap.String("usn", n.USN))
		}
		_ = n.conn.Close()
	})
}

func (n *Notifier) announceLoop() {
	defer close(n.doneCh)

	maxAge := n.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	// Re-announce at half the advertised lifetime so caches never see an
	// expiry between announcements.
	period := maxAge / 2
	if period < time.Second {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	n.sendAlive(maxAge)
	for {
		select {
		case <-ticker.C:
			n.sendAlive(maxAge)
		case <-n.stopCh:
			return
		}
	}
}

// sendAlive emits one alive announcement. Send failures are logged but do
// not interrupt the schedule; transient socket errors should not silence
// a device.
func (n *Notifier) sendAlive(maxAge time.Duration) {
	// SERVER is mandatory in an alive NOTIFY; receivers drop it otherwise.
	server := n.Server
	if server == "" {
		server = "castpoint/1.0 UPnP/1.0"
	}
	alive := &AliveNotify{
		Record: &DiscoveryRecord{
			Location: n.Location,
			USN:      n.USN,
			Target:   n.Target,
			Server:   server,
			MaxAge:   int(maxAge / time.Second),
		},
	}

	if _, err := n.conn.WriteTo(alive.Encode(), n.dest); err != nil {
		logging.Warn("Failed to send ssdp:alive", zap.String("usn", n.USN), zap.Error(err))
		return
	}
	logging.Debug("Sent ssdp:alive",
		zap.String("usn", n.USN),
		zap.String("nt", n.Target),
	)
}
