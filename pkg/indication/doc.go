// Package indication dispatches unsolicited QMI indications to subscribers.
//
// Subscriptions match on service, client id (or any client) and optionally
// a set of indication ids. Indications addressed to wire.CIDBroadcast reach
// every subscriber of the service.
//
// The subscription list is copy-on-write: Dispatch iterates a snapshot, so
// handlers may subscribe or unsubscribe without corrupting the walk. Changes
// made by a handler take effect from the next Dispatch.
package indication
