// Package store is the SQLite reference implementation of the stay record
// store: rooms and stays, read by filter and updated by id.
//
// Every successful write is published as a domain.ChangeEvent to the
// configured publishers (feed.Broker in-process, feed.RedisPublisher across
// processes), which is what the change feed listener consumes.
//
// # Invariants
//
//   - A non-cancelled stay never overlaps another non-cancelled stay in the
//     same room (half-open intervals). Writes that would break this fail
//     with ErrConflict.
//   - Every update bumps Version by one.
//   - Moving a stay to other dates or another room recomputes Total as
//     nights × the room's base rate.
//   - Reads are ordered deterministically: stays by check_in, id; rooms by
//     number, id (binary collation).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
