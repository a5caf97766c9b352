// Package protocolengine implements the Dynamics protocol engine inside the
// meeting-collaboration context.
//
// The module owns the phase state machine of a running protocol, the item and
// group store, the vote ledger with per-phase vote budgets, and the
// prioritization used to render review results. Every mutation commits inside
// one unit of work and is then broadcast to the meeting channel through the
// Broadcaster port, in commit order.
package protocolengine
