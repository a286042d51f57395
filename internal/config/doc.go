// Package config persists the known-device registry for the castpoint
// CLI.
//
// Discovery is ephemeral; the registry remembers what was found across
// runs so commands can refer to devices by nickname or UDN without a
// fresh search. The registry is a YAML file in the OS-appropriate config
// directory, written atomically. Device entries store metadata only: UDN,
// friendly name, last description location and last-seen time. Nothing
// sensitive lands on disk.
package config
