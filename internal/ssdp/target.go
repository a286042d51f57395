package ssdp

import (
	"fmt"
	"strconv"
	"strings"
)

// SearchTarget identifies what an M-SEARCH asks for, rendered into the ST
// header. The UPnP architecture defines five forms; Render produces the
// canonical token or urn string for each.
type SearchTarget interface {
	// Render returns the wire representation used in ST/NT headers.
	Render() string
}

type allTarget struct{}

func (allTarget) Render() string { return "ssdp:all" }

type rootDeviceTarget struct{}

func (rootDeviceTarget) Render() string { return "upnp:rootdevice" }

var (
	// All searches for every device and service on the network.
	All SearchTarget = allTarget{}

	// RootDevice searches for root devices only.
	RootDevice SearchTarget = rootDeviceTarget{}
)

// UUID searches for the single device with the given UUID.
type UUID string

func (u UUID) Render() string { return "uuid:" + string(u) }

// DeviceType searches for devices of a particular type, e.g.
// Domain "schemas-upnp-org", Name "MediaServer", Version 1.
type DeviceType struct {
	Domain  string
	Name    string
	Version int
}

func (t DeviceType) Render() string {
	return fmt.Sprintf("urn:%s:device:%s:%d", t.Domain, t.Name, t.Version)
}

// ServiceType searches for services of a particular type, e.g.
// Domain "schemas-upnp-org", Name "ContentDirectory", Version 1.
type ServiceType struct {
	Domain  string
	Name    string
	Version int
}

func (t ServiceType) Render() string {
	return fmt.Sprintf("urn:%s:service:%s:%d", t.Domain, t.Name, t.Version)
}

// RawTarget carries an ST string verbatim. Used when a target string comes
// off the wire and does not need further interpretation.
type RawTarget string

func (t RawTarget) Render() string { return string(t) }

// ParseSearchTarget maps an ST/NT header value back to a SearchTarget.
// Unrecognised values are preserved as RawTarget rather than rejected;
// devices invent target strings freely.
func ParseSearchTarget(s string) SearchTarget {
	switch s {
	case "ssdp:all":
		return All
	case "upnp:rootdevice":
		return RootDevice
	}

	if rest, ok := strings.CutPrefix(s, "uuid:"); ok && !strings.Contains(rest, ":") {
		return UUID(rest)
	}

	// urn:<domain>:device|service:<name>:<version>
	parts := strings.Split(s, ":")
	if len(parts) == 5 && parts[0] == "urn" {
		version, err := strconv.Atoi(parts[4])
		if err == nil {
			switch parts[2] {
			case "device":
				return DeviceType{Domain: parts[1], Name: parts[3], Version: version}
			case "service":
				return ServiceType{Domain: parts[1], Name: parts[3], Version: version}
			}
		}
	}

	return RawTarget(s)
}
