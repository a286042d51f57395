// Package description fetches and parses UPnP description documents.
//
// Discovery (package ssdp) yields a LOCATION URL per device. This package
// turns that URL into a typed model in two stages:
//
//  1. Fetch the device description document (DDF) and walk its device
//     tree, including embedded devices, building Device and Service
//     values with control/event/SCPD URLs resolved against the device's
//     URL base.
//  2. For every service that names an SCPD URL, fetch the service
//     description and populate the service state table and action list.
//
// A service whose SCPD fetch fails is marked failed but never poisons its
// siblings or the device tree.
//
// All HTTP fetches use a 30-second per-attempt timeout with exactly one
// retry on timeout. XML is parsed into a generic Tree (nested maps) so the
// model builder is indifferent to schema quirks; real devices omit, repeat
// and misplace elements constantly.
package description
