// Package state holds the persisted key/value state of the coordination runtime.
//
// A Store is the durable backend. Reads and writes made while applying a block go through a
// Cache, which buffers every write in memory until it is either written into its parent cache
// or committed to the Store as a single atomic batch. Discarding a cache drops its writes, which
// is how a failed operation leaves no partial mutation behind.
//
// Map and Item give typed access to values under a key prefix, encoded with msgpack.
package state
