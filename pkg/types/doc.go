// Package types defines the shared data model for herdctl: service
// definitions and their expanded instances, the process manager's view of
// installed units, and the plan structures produced by reconciliation and
// rolling restarts.
//
// Instances are never persisted. They are materialized fresh from their
// definition on every pass, and their identity derives deterministically
// from (source, service, index), so an unchanged definition always expands
// to byte-identical instances.
package types
