// Package quota tracks daily Tado API consumption and gates polling.
//
// This package is internal to tadowatch and owns the bookkeeping that keeps
// the watcher inside the vendor's daily request quota. It implements:
//
//   - [Tracker]: mutex-guarded counter fed by every API response, consulted
//     before every poll cycle
//   - [Policy]: tier-derived polling interval and daily limit
//   - [Store]: persistence of the counter across restarts, with [FileStore]
//     and [MemoryStore] implementations
//   - [Usage]: read-only view served over the HTTP API
//
// The tracker is handed to the API client as its call recorder, so scheduled
// polls and manual commands share one counter. Vendor rate-limit headers
// overwrite the local bookkeeping whenever they appear; the local counter
// only carries the state between responses.
//
// Users of the tadowatch library should not need to interact with this
// package directly. Quota behavior is configured through the main tadowatch
// package.
package quota
