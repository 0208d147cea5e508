// Package ctl builds and parses messages of the QMI control service.
//
// CTL is always reachable through client id 0 and is the only service that
// uses 8-bit transaction ids. The device layer uses this package to allocate
// and release client ids, query service versions and resynchronize state.
package ctl
