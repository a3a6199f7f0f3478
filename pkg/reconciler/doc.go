// Package reconciler computes and applies the difference between the
// desired service instances expanded from configuration and the units a
// process manager backend currently has installed. The desired state is
// recomputed from scratch on every pass; nothing is cached between runs, so
// convergence is always toward the configuration on disk.
package reconciler
