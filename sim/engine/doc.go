// Package engine is the deterministic discrete-event loop that drives the
// forwarding simulation.
//
// Time is an int64 count of nanoseconds since the start of the run. Events
// are ordered by timestamp, then by type priority, then by the order in
// which they were scheduled, so two runs with the same inputs execute the
// same events in the same order. Handlers run to completion on the calling
// goroutine; anything they want to happen later is scheduled, never called
// re-entrantly.
package engine
