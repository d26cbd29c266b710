// Package refresh coalesces refresh requests in time.
//
// Debouncer turns a burst of requests into one call after a quiet period.
// Poller repeats a call at a fixed interval while a condition holds. Both
// run on a clock.Clock so tests can drive them with virtual time.
package refresh
