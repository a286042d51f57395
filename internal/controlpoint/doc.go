// Package controlpoint ties discovery and description together into a
// UPnP control point: one object that searches the network, builds typed
// device models for everything it finds, and tracks device arrivals and
// departures for as long as it runs.
//
// # Lifecycle
//
//	cp, err := controlpoint.New(controlpoint.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cp.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cp.Stop()
//
//	for _, device := range cp.Devices() {
//	    fmt.Println(device)
//	}
//
// Start performs one search pass (multicast, plus broadcast when opted
// in), builds a Device per discovery record, then keeps listening: an
// ssdp:alive for an unknown UDN triggers a build-and-add, an ssdp:byebye
// removes the device. The known-device registry is keyed by UDN and
// deduplicated; Devices returns point-in-time snapshots.
package controlpoint
