package ssdp

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/tverberg/castpoint/internal/logging"
)

// DefaultTTL is the default IP multicast TTL for outbound SSDP datagrams.
const DefaultTTL = 4

// maxDatagramSize bounds a single SSDP datagram. Header blocks in the wild
// stay well under 2 KiB; 8 KiB leaves room for pathological senders.
const maxDatagramSize = 8192

var multicastGroupIP = net.IPv4(239, 255, 255, 250)

// openMulticastListener opens the shared multicast socket bound to
// 0.0.0.0:1900 and joins the SSDP group on every eligible IPv4 interface.
// ListenMulticastUDP sets SO_REUSEADDR/SO_REUSEPORT, so a Listener and a
// device-side Notifier can coexist in one process.
func openMulticastListener(ttl int) (*net.UDPConn, error) {
	gaddr := &net.UDPAddr{IP: multicastGroupIP, Port: Port}

	conn, err := net.ListenMulticastUDP("udp4", nil, gaddr)
	if err != nil {
		return nil, fmt.Errorf("failed to open SSDP multicast socket: %w", err)
	}

	p := ipv4.NewPacketConn(conn)
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := p.SetMulticastTTL(ttl); err != nil {
		logging.Warn("Failed to set multicast TTL", zap.Int("ttl", ttl), zap.Error(err))
	}

	joinAllInterfaces(p, gaddr)

	return conn, nil
}

// joinAllInterfaces joins the SSDP group on each up, multicast-capable
// IPv4 interface. ListenMulticastUDP already joined on the system default;
// extra joins widen coverage on multi-homed hosts and failures are
// expected (interfaces without IPv4, already-joined groups), so they are
// logged at debug and ignored.
func joinAllInterfaces(p *ipv4.PacketConn, gaddr *net.UDPAddr) {
	interfaces, err := net.Interfaces()
	if err != nil {
		logging.Warn("Failed to enumerate interfaces for multicast join", zap.Error(err))
		return
	}

	for i := range interfaces {
		ifi := &interfaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(ifi, gaddr); err != nil {
			logging.Debug("Multicast join failed",
				zap.String("interface", ifi.Name),
				zap.Error(err),
			)
			continue
		}
		logging.Debug("Joined SSDP multicast group", zap.String("interface", ifi.Name))
	}
}

// openSendSocket opens an ephemeral UDP socket bound to 0.0.0.0:0 for the
// Searcher and Notifier. With broadcast set, SO_BROADCAST is enabled so
// datagrams can be sent to 255.255.255.255.
func openSendSocket(ttl int, broadcast bool) (net.PacketConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			if !broadcast {
				return nil
			}
			var optErr error
			if err := c.Control(func(fd uintptr) {
				optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}); err != nil {
				return err
			}
			return optErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to open SSDP send socket: %w", err)
	}

	if udp, ok := conn.(*net.UDPConn); ok {
		p := ipv4.NewPacketConn(udp)
		if ttl <= 0 {
			ttl = DefaultTTL
		}
		if err := p.SetMulticastTTL(ttl); err != nil {
			logging.Warn("Failed to set multicast TTL", zap.Int("ttl", ttl), zap.Error(err))
		}
	}

	return conn, nil
}

// resolveDestination turns an "ip:port" SSDP destination into a UDP
// address usable with PacketConn.WriteTo.
func resolveDestination(address string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve SSDP destination %s: %w", address, err)
	}
	return addr, nil
}
