// Package registry tracks the QMI clients active on a device.
//
// Client ids are allocated per service by the CTL service; the Allocator
// interface performs those round trips. A client id of wire.CIDNone asks for
// a fresh id, anything else is adopted without contacting the device. The
// routing table answers whether a response or indication for a (service,
// client id) pair has a recipient.
package registry
