// Package event provides typed signals with ownership-tracked
// subscriptions.
//
// A Signal is a synchronous observer registry: handlers run on the
// emitting goroutine, in the order they were connected. Connect returns
// a Subscription handle; every Connect has exactly one matching
// Disconnect, which makes teardown auditable at dispose time instead of
// relying on manually paired connect/disconnect calls.
package event
