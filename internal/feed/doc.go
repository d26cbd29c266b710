// Package feed listens to remote stay and room changes.
//
// A Source delivers ChangeEvents over Subscriptions. Listener subscribes to
// both entity kinds, turns every event into a notification plus a debounced
// refresh request, runs the fallback poll, and tracks the connection state.
// Broker is the in-process Source fed by the SQLite store; RedisSource reads
// the same events from Redis pub/sub.
package feed
