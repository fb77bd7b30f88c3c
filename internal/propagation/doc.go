// Package propagation fans a subject change out to its external resources.
//
// The manager turns one create/update/delete into an ordered set of
// per-resource tasks: it unions explicitly linked resources with resources
// inherited through group membership, drops caller exclusions, resolves
// each resource's payload through the mapping resolver, and orders tasks
// primary first, then by ascending priority, ties broken by resource name.
//
// The executor runs tasks on a worker pool. Tasks touching the same
// (resource, account) pair are serialized by a keyed lock; everything else
// may run concurrently. A failure on one resource never prevents the
// remaining tasks from being attempted, and the internal store mutation
// that triggered the propagation is never rolled back: this is a
// best-effort, reconciled-later model.
//
// Every executed task yields exactly one status: Success for a confirmed
// round trip, Submitted for a one-way call that was accepted without
// confirmation, Unsubmitted for a task that was never attempted (missing
// mandatory value, missing password), Failure for a connector error or
// timeout, with the reason preserved verbatim.
package propagation
