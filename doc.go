// Package constellation provides an embeddable runtime for activity-based
// parallel and distributed computation.
//
// Work is expressed as activities: small suspendable units that run
// cooperatively on a fixed set of executor goroutines and coordinate only by
// sending events to each other's identifiers. Idle executors steal queued
// work from their peers, so an application that submits enough activities
// keeps every executor busy without any explicit load balancing.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Activity
//  2. Event
//  3. Constellation
//  4. Steal pools and strategies
//  5. SingleEventCollector
//
// # Activity
//
// An Activity implements three hooks. Initialize runs once, when the
// activity is first picked up. Process runs on every activation after that
// and returns a Decision: Finish completes the activity, Suspend parks it
// until an event addressed to it arrives. Cleanup runs once, after Finish.
//
// Activities never block an executor while waiting: suspension releases the
// goroutine immediately and the runtime re-queues the activity when its
// event shows up.
//
// # Event
//
// Events are addressed to activity identifiers, carry an arbitrary payload,
// and are consumed exactly once by the resumption of their target. Sending
// is fire-and-forget; an unresolvable target surfaces as an UnknownTarget
// error on the sender.
//
// # Constellation
//
// A Constellation is one node's runtime instance: it owns the executors,
// assigns identifiers, routes events, and (in multi-node runs) exchanges
// activities and events with its peer nodes over the configured transport.
// Construct one with New, or a whole in-process cluster with
// NewLoopbackCluster for tests and development.
//
// Multi-node runs are launched externally: every process gets the same peer
// list and its own node index, and node 0 conventionally acts as master,
// submitting the initial work.
//
// # Stealing
//
// Each executor owns a double-ended queue. The owner pushes and pops at one
// end; idle peers steal from the other. Victim selection is pluggable
// (round-robin, random, or locality-biased) and the steal pool either stays
// node-local or spans every node of the run. Activities submitted with
// NotStealable stay where they were placed.
//
// # SingleEventCollector
//
// SingleEventCollector bridges activity-land and ordinary Go code: submit
// one, hand its identifier to whatever will produce the result, and Wait for
// the event from outside the runtime.
//
// For complete programs, see the /examples directory.
package constellation
