package ssdp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Well-known SSDP endpoints.
const (
	// MulticastAddress is the SSDP multicast group every UPnP device joins.
	MulticastAddress = "239.255.255.250:1900"

	// BroadcastAddress is the limited-broadcast fallback used by the
	// broadcast searcher. Outside the UPnP standard.
	BroadcastAddress = "255.255.255.255:1900"

	// Port is the SSDP well-known UDP port.
	Port = 1900
)

const (
	manDiscover = `"ssdp:discover"`
	ntsAlive    = "ssdp:alive"
	ntsByeBye   = "ssdp:byebye"
)

// DecodeError describes a datagram that does not form a valid SSDP
// message. Consumers log and drop these; they are never fatal.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "ssdp: " + e.Reason
}

// Message is one of the four SSDP message kinds: MSearch, AliveNotify,
// ByeByeNotify or SearchResponse.
type Message interface {
	// Encode serialises the message to its HTTP/1.1-shaped wire form,
	// CRLF line endings, terminated by a blank line.
	Encode() []byte
}

// MSearch is a client-initiated search request, sent to the multicast
// group (or broadcast address).
type MSearch struct {
	// Host is the HOST header value; defaults to MulticastAddress.
	Host string

	// Target is what to search for, rendered into ST.
	Target SearchTarget

	// MX is the maximum response delay in seconds devices may wait.
	MX int
}

// Encode serialises the M-SEARCH request.
func (m *MSearch) Encode() []byte {
	host := m.Host
	if host == "" {
		host = MulticastAddress
	}

	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", host)
	fmt.Fprintf(&b, "MAN: %s\r\n", manDiscover)
	fmt.Fprintf(&b, "MX: %d\r\n", m.MX)
	fmt.Fprintf(&b, "ST: %s\r\n", m.Target.Render())
	b.WriteString("\r\n")
	return []byte(b.String())
}

// AliveNotify is a device presence announcement (NTS: ssdp:alive).
type AliveNotify struct {
	Record *DiscoveryRecord
}

// Encode serialises the alive notification. Extension headers preserved in
// the record's raw header map are re-emitted after the mandatory set.
func (m *AliveNotify) Encode() []byte {
	r := m.Record

	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", MulticastAddress)
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", r.MaxAge)
	fmt.Fprintf(&b, "LOCATION: %s\r\n", r.Location)
	fmt.Fprintf(&b, "NT: %s\r\n", r.Target)
	fmt.Fprintf(&b, "NTS: %s\r\n", ntsAlive)
	fmt.Fprintf(&b, "SERVER: %s\r\n", r.Server)
	fmt.Fprintf(&b, "USN: %s\r\n", r.USN)
	writeExtensionHeaders(&b, r.Headers, "HOST", "CACHE-CONTROL", "LOCATION", "NT", "NTS", "SERVER", "USN")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ByeByeNotify is a device departure announcement (NTS: ssdp:byebye).
type ByeByeNotify struct {
	// Target is the NT value of the withdrawn advertisement.
	Target string

	// USN is the unique service name being withdrawn.
	USN string
}

// Encode serialises the byebye notification.
func (m *ByeByeNotify) Encode() []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", MulticastAddress)
	fmt.Fprintf(&b, "NT: %s\r\n", m.Target)
	fmt.Fprintf(&b, "NTS: %s\r\n", ntsByeBye)
	fmt.Fprintf(&b, "USN: %s\r\n", m.USN)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// SearchResponse is the unicast reply a device sends to an M-SEARCH.
type SearchResponse struct {
	Record *DiscoveryRecord
}

// Encode serialises the search response.
func (m *SearchResponse) Encode() []byte {
	r := m.Record

	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", r.MaxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", r.Date)
	fmt.Fprintf(&b, "EXT:%s\r\n", extValue(r.EXT))
	fmt.Fprintf(&b, "LOCATION: %s\r\n", r.Location)
	fmt.Fprintf(&b, "SERVER: %s\r\n", r.Server)
	fmt.Fprintf(&b, "ST: %s\r\n", r.Target)
	fmt.Fprintf(&b, "USN: %s\r\n", r.USN)
	writeExtensionHeaders(&b, r.Headers, "CACHE-CONTROL", "DATE", "EXT", "LOCATION", "SERVER", "ST", "USN")
	b.WriteString("\r\n")
	return []byte(b.String())
}

func extValue(v string) string {
	if v == "" {
		return ""
	}
	return " " + v
}

// writeExtensionHeaders emits headers from the raw map that are not in the
// mandatory set, sorted by name so encoding is deterministic.
func writeExtensionHeaders(b *strings.Builder, headers map[string]string, known ...string) {
	if len(headers) == 0 {
		return
	}
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		if !knownSet[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "%s: %s\r\n", name, headers[name])
	}
}

// Decode parses a datagram into one of the four message kinds. Messages
// with an unknown start line or a missing mandatory header yield a
// *DecodeError; callers are expected to drop them.
func Decode(data []byte) (Message, error) {
	text := string(data)

	// Tolerate bare-LF senders; the grammar says CRLF but broken stacks
	// exist in the field.
	text = strings.ReplaceAll(text, "\r\n", "\n")

	// Ignore anything after the blank line; SSDP has no body.
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		text = text[:idx]
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, &DecodeError{Reason: "empty datagram"}
	}
	startLine := strings.TrimSpace(lines[0])

	headers := make(map[string]string)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &DecodeError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		name = strings.ToUpper(strings.TrimSpace(name))
		if _, dup := headers[name]; !dup {
			headers[name] = strings.TrimSpace(value)
		}
	}

	switch {
	case strings.HasPrefix(startLine, "M-SEARCH "):
		return decodeMSearch(startLine, headers)
	case strings.HasPrefix(startLine, "NOTIFY "):
		return decodeNotify(startLine, headers)
	case strings.HasPrefix(startLine, "HTTP/"):
		return decodeResponse(startLine, headers)
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unrecognised start line %q", startLine)}
	}
}

func decodeMSearch(startLine string, headers map[string]string) (Message, error) {
	if startLine != "M-SEARCH * HTTP/1.1" {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed M-SEARCH start line %q", startLine)}
	}
	if headers["HOST"] == "" {
		return nil, &DecodeError{Reason: "M-SEARCH missing HOST header"}
	}
	if man := strings.Trim(headers["MAN"], `"`); man != "ssdp:discover" {
		return nil, &DecodeError{Reason: fmt.Sprintf("M-SEARCH MAN is %q, not ssdp:discover", headers["MAN"])}
	}
	st := headers["ST"]
	if st == "" {
		return nil, &DecodeError{Reason: "M-SEARCH missing ST header"}
	}
	mx, err := strconv.Atoi(headers["MX"])
	if err != nil {
		return nil, &DecodeError{Reason: fmt.Sprintf("M-SEARCH MX %q is not an integer", headers["MX"])}
	}

	return &MSearch{
		Host:   headers["HOST"],
		Target: ParseSearchTarget(st),
		MX:     mx,
	}, nil
}

func decodeNotify(startLine string, headers map[string]string) (Message, error) {
	if startLine != "NOTIFY * HTTP/1.1" {
		return nil, &DecodeError{Reason: fmt.Sprintf("malformed NOTIFY start line %q", startLine)}
	}
	if headers["HOST"] == "" {
		return nil, &DecodeError{Reason: "NOTIFY missing HOST header"}
	}
	if headers["NT"] == "" {
		return nil, &DecodeError{Reason: "NOTIFY missing NT header"}
	}

	switch headers["NTS"] {
	case ntsAlive:
		for _, required := range []string{"CACHE-CONTROL", "SERVER"} {
			if headers[required] == "" {
				return nil, &DecodeError{Reason: "alive NOTIFY missing " + required + " header"}
			}
		}
		record, err := newDiscoveryRecord(headers, "NT")
		if err != nil {
			return nil, err
		}
		return &AliveNotify{Record: record}, nil

	case ntsByeBye:
		if headers["USN"] == "" {
			return nil, &DecodeError{Reason: "byebye NOTIFY missing USN header"}
		}
		return &ByeByeNotify{
			Target: headers["NT"],
			USN:    headers["USN"],
		}, nil

	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("NOTIFY with unknown NTS %q", headers["NTS"])}
	}
}

func decodeResponse(startLine string, headers map[string]string) (Message, error) {
	fields := strings.Fields(startLine)
	if len(fields) < 2 || fields[1] != "200" {
		return nil, &DecodeError{Reason: fmt.Sprintf("search response status line %q is not 200", startLine)}
	}

	for _, required := range []string{"CACHE-CONTROL", "DATE", "SERVER", "ST"} {
		if headers[required] == "" {
			return nil, &DecodeError{Reason: "search response missing " + required + " header"}
		}
	}
	// EXT carries no value; only its presence is mandated.
	if _, ok := headers["EXT"]; !ok {
		return nil, &DecodeError{Reason: "search response missing EXT header"}
	}

	record, err := newDiscoveryRecord(headers, "ST")
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Record: record}, nil
}
