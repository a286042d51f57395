// Package tui implements the interactive device browser for the
// castpoint CLI.
//
// The browse screen runs a discovery pass with a progress indicator,
// then lists every device found as a selectable card showing its
// friendly name, model, UDN and service readiness. Rescanning and
// selection are driven entirely by the keyboard; selecting a device
// hands it back to the calling command.
package tui
