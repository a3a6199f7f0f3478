// Package rolling restarts replicated services one instance at a time,
// confirming health between steps so capacity never drops by more than one
// replica. Non-replicated services are dispatched to simpler restart paths
// (in-place signal reload, plain restart, or nothing) based on the graceful
// method their definition declares.
package rolling
