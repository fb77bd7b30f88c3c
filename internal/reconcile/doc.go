// Package reconcile pulls external records from one resource and brings
// the internal subject store into agreement with them.
//
// Every record moves through the same pipeline: fetch, inbound mapping
// resolution, correlation, policy decision, application, counting. The
// policy is a pair of rules from the task configuration: the matching rule
// applies when the record correlates to an existing subject, the
// unmatching rule when it does not. Templates overlay decided subjects
// with configured values, template winning over inbound data.
//
// A failure on one record never aborts the rest of the pass; it is counted
// and the loop continues. Cancellation is cooperative and observed between
// records. Dry runs execute the full pipeline, connector reads included,
// but never write to the store or to any connector, so they are repeatable
// by construction.
//
// One execution per task at a time: a trigger while the same task is
// running is rejected, not queued. Different tasks run concurrently.
package reconcile
