// Package locqueue implements the durable outbound location queue.
//
// Producers hand GPS samples to a Queue. Each sample is assigned a strictly
// increasing, gap-free sequence number and persisted before it becomes
// eligible for delivery. A flush (triggered by queue size, a timer, or an
// explicit call) submits the pending samples in ascending sequence order to
// the delivery collaborator and reconciles the queue against the server's
// acknowledgement: confirmed entries are pruned, unconfirmed entries stay
// queued for the next attempt. Delivery is at-least-once; a sample is never
// dropped before the server confirms it.
//
// Two watermarks are persisted alongside the entries: lastSeq, the highest
// sequence ever allocated, and lastAppliedSeq, the highest sequence the
// server has confirmed. Both are monotonically non-decreasing across
// restarts.
package locqueue
