// Package store keeps the in-memory copy of the latest home snapshot and
// fans updates out to subscribers.
//
// [Snapshot] is the result of one poll cycle, [Store] the storage contract,
// and [MemoryStore] the only implementation. Subscription channels use
// non-blocking sends, so a stalled consumer loses updates instead of
// holding up the poll loop.
//
// Users of the tadowatch library should not need to interact with this
// package directly. Storage is managed internally by the watcher.
package store
