// Package availability computes per-room free/busy and period statistics
// from a stay set. Everything here is pure: callers fetch rooms and stays
// and pass them in.
package availability
