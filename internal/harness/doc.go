// Package harness runs reservation calendar scenarios end to end.
//
// A scenario seeds a fixture property into a fresh in-memory store, starts
// a real engine with its change feed attached to an in-process broker, and
// drives it with a fake clock. Every step is recorded in a trace; after the
// flow the final grid, notification list and feed counters are snapshotted
// for golden comparison.
//
// # Scenario Format
//
//	name: drag_commit
//	description: "What this scenario validates"
//	fixture: ../fixtures/hotel.yaml
//	window: { start: 2025-08-18, view: week }
//	setup:
//	  - action: insert
//	    args: { id: C, room: R102, check_in: 2025-08-21, check_out: 2025-08-22 }
//	flow:
//	  - invoke: move
//	    args: { stay: A, from: R101@2025-08-18, to: R102@2025-08-20 }
//	    expect:
//	      case: committed
//	      result: { room_id: R102, version: 2 }
//	  - invoke: advance
//	    args: { by: 500ms }
//	assertions:
//	  - type: occupied
//	    room: R102
//	    date: 2025-08-21
//	    stays: [A]
//
// Argument and result values are compared as the text written in the file,
// so dates and numbers never go through YAML type resolution.
//
// # Actions
//
//   - move: propose a drag from one cell to another, optionally with check_out
//   - insert, status, cancel, delete: write to the store as another client would
//   - housekeeping: change a room's housekeeping status
//   - advance: move the fake clock, firing debounce and poll timers
//   - refresh: force a refresh of every cached view
//   - fail_feed, resubscribe: break and restore the change feed
//
// # Assertion Types
//
//   - trace_contains, trace_order, trace_count: check the step trace
//   - occupied: the stays in one grid cell
//   - available: the rooms free for a date range
//   - stats: aggregate fields for a date range
//   - notifications: count and categories, newest first
//   - final_state: stored fields of one stay
//   - connection: the change feed state
//
// # Determinism
//
// Time only moves on advance. After each step the harness waits until the
// listener has handled every change event the step caused and the engine
// loop has drained, so identical scenarios produce identical snapshots.
package harness
