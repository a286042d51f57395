// Package ssdp implements the Simple Service Discovery Protocol, the
// multicast UDP discovery step of UPnP.
//
// SSDP speaks HTTP/1.1 syntax over UDP on the well-known group
// 239.255.255.250:1900. The package covers all three roles a control point
// or device can play:
//
//   - Searcher: sends M-SEARCH requests and collects unicast responses
//     until a deadline (see Searcher). A non-standard broadcast variant is
//     available for devices that never joined the multicast group.
//   - Listener: passively observes NOTIFY ssdp:alive and ssdp:byebye
//     announcements and fans them out to subscribers (see Listener).
//   - Notifier: periodically announces a device's presence and withdraws
//     it on shutdown (see Notifier).
//
// # Usage Example
//
//	searcher := ssdp.NewSearcher()
//	records, err := searcher.Search(context.Background(), ssdp.All)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, rec := range records {
//	    fmt.Printf("%s at %s\n", rec.USN, rec.Location)
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow SSDP (UDP port 1900)
//
// Malformed datagrams are dropped, never surfaced as errors (the Listener
// counts the ones it drops; see MalformedCount); a LAN full of broken UPnP
// stacks is the normal operating environment.
package ssdp
