// Package cache holds the engine's cached stay views and the index that
// maps a stay id to every view containing it.
//
// The index is what makes optimistic moves checkable: Patch applies a new
// stay record to every affected view under one write lock and returns a
// Token holding, per view, the stay's prior record and position; Rollback
// writes back only that stay's entry, also under one lock. Moves of other
// stays that landed in the same views in between are kept. Readers never
// observe a half-applied move.
//
// A view refetched with Put after the patch is left alone by Rollback, so
// fetched data is never overwritten with an older record.
package cache
