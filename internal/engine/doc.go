// Package engine wires the reservation grid components into one object.
//
// An Engine owns the cached stay views, the reschedule protocol, the
// refresh debouncer, the notification list and, once started, the change
// feed listener. Callers read through Grid, Availability and Stats, and
// mutate through ProposeMove.
//
// ARCHITECTURE:
//
// Single-Writer Refresh Loop:
// Refreshes requested by the debouncer, the fallback poll or a caller are
// queued and executed one at a time by Run. Two refreshes never overlap,
// and a refresh always refetches current data when it executes, so the
// last refresh of a burst observes every change in the burst.
//
// Refresh Processing Flow:
// 1. A move commit or a change event calls Debouncer.Request
// 2. The quiet period expires and a refresh event is enqueued
// 3. Run dequeues it and marks every cached view stale in one pass
// 4. Each stale view is refetched with its original filter
//
// Fallback polls bypass the debouncer and enqueue directly.
//
// Queries are served from cached views when fresh. A query for a view that
// is missing or stale fetches it on the caller's goroutine and installs the
// result; the cache index keeps concurrent readers consistent.
//
// Multiple engines may coexist; no state is package-global.
package engine
