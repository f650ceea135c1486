// Package tenant owns the list of registered companies, the single
// active tenant, and the durable "last selected" marker, and orchestrates
// the switch protocol between them.
//
// The lifecycle is a small state machine:
//
//	Uninitialized → (Load) → Idle ⇄ Switching
//	                          ⇅
//	                 PendingConfirmation
//
// A switch validates the target, updates the security context value,
// persists the activation in one exclusive-flag transaction, writes the
// durable marker, and finally publishes one change notification on the
// hub — in that order, synchronously. Failures before persistence leave
// storage untouched; failures after it leave the marker or notification
// stale until the next successful switch, which is surfaced, never
// hidden.
//
// Invariant: at most one tenant record is active at any observable
// instant, and after any successful switch exactly one is (unless the
// tenant set is empty). The store enforces this with a partial unique
// index; the exclusive-flag write repairs any pre-existing corruption in
// the same transaction.
package tenant
