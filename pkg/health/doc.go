// Package health provides the reachability probes used during rolling
// restarts: a TCP connect check and an HTTP status check. ForBind selects
// the right checker for a service instance's bind target.
//
// These are liveness probes only. Application-level health protocols are
// the responsibility of the services themselves.
package health
