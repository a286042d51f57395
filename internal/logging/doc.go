// Package logging provides structured logging for the castpoint library.
//
// Logging is built on go.uber.org/zap and is silent by default so the
// library never writes to a terminal unless asked to. Verbosity is
// controlled either programmatically via Initialize or through the
// CASTPOINT_LOG_LEVEL environment variable.
//
// # Levels
//
// Valid levels are "debug", "info", "warn" and "error". At debug level the
// SSDP engine logs every datagram it receives, including a hex dump of the
// payload, which is the first thing to reach for when a device refuses to
// answer an M-SEARCH. Outgoing M-SEARCH and ssdp:alive datagrams are logged
// as one-line events without a payload dump.
package logging
