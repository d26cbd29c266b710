// Package schedule turns a drag-and-drop gesture into a stay mutation.
//
// A move is derived from a source and destination cell, applied
// optimistically to every cached view through cache.Index, sent to the
// store, and then either committed (the store's record is installed and a
// refresh requested) or rolled back from the snapshot. At most one move per
// stay is in flight; a second attempt is rejected, never queued.
package schedule
