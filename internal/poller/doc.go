// Package poller drives the quota-aware polling loop for tadowatch.
//
// This package is internal to tadowatch and handles the periodic refresh of
// home state from the vendor API. Unlike a conventional poller it never
// fetches concurrently: requests run one at a time so every call is
// counted against the daily quota before the next one starts, and the
// whole loop runs off a single timer whose next wake depends on the quota
// tracker's verdict.
//
// [Coordinator] runs the loop and emits snapshots; [Features] selects
// which optional data sections each cycle fetches.
//
// Users of the tadowatch library should not need to interact with this
// package directly. Configuration is done through the main tadowatch
// package.
package poller
