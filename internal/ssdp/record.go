package ssdp

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DiscoveryRecord is the result of a single search response or alive
// notification: one advertised device or service instance. Records are
// immutable once parsed.
type DiscoveryRecord struct {
	// Location is the absolute HTTP URL of the device description document.
	Location string

	// USN is the unique service name identifying this advertisement.
	USN string

	// Target is the ST (search response) or NT (notification) value.
	Target string

	// Server is the device's OS/product identification string.
	Server string

	// MaxAge is the advertised cache lifetime in seconds, from
	// CACHE-CONTROL: max-age=N. Zero when absent or unparseable.
	MaxAge int

	// EXT is the (normally empty) EXT header value.
	EXT string

	// Date is the DATE header value as sent by the device.
	Date string

	// Headers holds every header of the originating datagram verbatim,
	// keyed by upper-cased name. Extension headers survive here.
	Headers map[string]string

	// ReceivedAt is when the datagram arrived.
	ReceivedAt time.Time
}

// newDiscoveryRecord validates and builds a record from a parsed header
// block. targetHeader selects ST (responses) or NT (notifications).
// Records lacking LOCATION or USN are rejected.
func newDiscoveryRecord(headers map[string]string, targetHeader string) (*DiscoveryRecord, error) {
	location := headers["LOCATION"]
	if location == "" {
		return nil, &DecodeError{Reason: "missing LOCATION header"}
	}
	u, err := url.Parse(location)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, &DecodeError{Reason: fmt.Sprintf("LOCATION %q is not an absolute URL", location)}
	}

	usn := headers["USN"]
	if usn == "" {
		return nil, &DecodeError{Reason: "missing USN header"}
	}

	return &DiscoveryRecord{
		Location:   location,
		USN:        usn,
		Target:     headers[targetHeader],
		Server:     headers["SERVER"],
		MaxAge:     parseMaxAge(headers["CACHE-CONTROL"]),
		EXT:        headers["EXT"],
		Date:       headers["DATE"],
		Headers:    headers,
		ReceivedAt: time.Now(),
	}, nil
}

// parseMaxAge extracts N from a "max-age=N" cache-control directive.
// Devices emit anything from bare "max-age=1800" to comma-separated lists;
// scan directives and take the first max-age that parses.
func parseMaxAge(cacheControl string) int {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		value, ok := strings.CutPrefix(directive, "max-age")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "="))
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

// String returns a human-readable one-line summary of the record.
func (r *DiscoveryRecord) String() string {
	return fmt.Sprintf("%s (%s) at %s", r.USN, r.Target, r.Location)
}
