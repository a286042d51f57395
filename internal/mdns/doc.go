// Package mdns provides an mDNS fallback for UPnP device discovery.
//
// SSDP is the UPnP-standard discovery mechanism, but some networks filter
// UDP port 1900 while letting mDNS through, and a handful of media
// devices advertise a "_upnp._tcp" service with a TXT record pointing at
// their description document. This scanner browses for those
// advertisements and maps them to candidate description URLs that feed
// the same device builder as SSDP results.
//
// This path is opt-in and strictly a compatibility aid, in the same
// spirit as the broadcast searcher: outside the UPnP specification, but
// occasionally the only thing that works.
package mdns
