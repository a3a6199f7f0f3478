// Package metrics defines the Prometheus collectors for reconciliation and
// rolling restart operations, plus a small Timer helper for histogram
// observations. The handler is only served when a metrics address is
// configured on a long-lived command.
package metrics
