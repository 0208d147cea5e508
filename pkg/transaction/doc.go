// Package transaction tracks QMI requests that are waiting for a response.
//
// A Table hands out transaction ids per (service, client id) and matches
// responses strictly by (service, client id, transaction id), never by
// arrival order. Each Transaction moves from Pending to exactly one of
// Completed, TimedOut, Aborted or Cancelled:
//
//   - Complete: the device answered.
//   - ExpireOverdue (driven by Run): the deadline passed.
//   - Cancel: the caller gave up. Only the local waiter is released; the
//     device may still act on the request.
//   - Abort: the device confirmed a wire-level abort. A response that was
//     delivered first wins and Abort is a no-op.
//   - ShutdownAll: the port went away.
//
// Waiters block on Transaction.Done or Transaction.Wait.
package transaction
