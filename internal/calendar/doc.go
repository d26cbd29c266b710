// Package calendar projects stays onto a room×date occupancy grid.
//
// Build is pure: it reads rooms, stays and a view window and returns a new
// Grid. It is re-run whenever any of the three change. Cell population
// follows stay input order; that order is stable within one build but
// carries no other meaning.
//
// Occupancy uses the half-open rule for every window kind: a stay appears in
// cell d iff CheckIn <= d < CheckOut. The checkout day is reported separately
// as a departure so renderers can draw a changeover marker without counting
// it as occupied.
package calendar
