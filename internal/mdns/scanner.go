package mdns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the mDNS service type some UPnP devices advertise.
	ServiceType = "_upnp._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second
)

// Candidate is one mDNS advertisement mapped to a UPnP description URL.
type Candidate struct {
	// Instance is the advertised service instance name.
	Instance string

	// Hostname is the mDNS hostname.
	Hostname string

	// IP is the device address (IPv4 preferred).
	IP string

	// Port is the advertised port.
	Port int

	// Location is the description document URL, either from the TXT
	// record or synthesised from host and port.
	Location string

	// Metadata contains the remaining TXT record data.
	Metadata map[string]string
}

// Scanner handles mDNS fallback discovery.
type Scanner struct {
	// Timeout is the maximum time to wait for advertisements.
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan browses for UPnP service advertisements until the timeout and
// returns the candidates found.
func (s *Scanner) Scan(ctx context.Context) ([]*Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	candidates := make([]*Candidate, 0)
	done := make(chan struct{})

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			candidate := parseServiceEntry(entry)
			if candidate != nil {
				candidates = append(candidates, candidate)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	return candidates, nil
}

// parseServiceEntry converts a zeroconf service entry to a Candidate.
// Returns nil for entries with no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Candidate {
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = 80
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	// The TXT location wins; otherwise guess the conventional root path.
	location := metadata["location"]
	if location == "" {
		location = fmt.Sprintf("http://%s:%d/description.xml", ip, port)
	}

	return &Candidate{
		Instance: entry.Instance,
		Hostname: entry.HostName,
		IP:       ip,
		Port:     port,
		Location: location,
		Metadata: metadata,
	}
}
