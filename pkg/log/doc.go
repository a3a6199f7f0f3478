// Package log wraps zerolog with a process-global logger and helpers for
// attaching the fields used throughout herdctl (component, source, service,
// unit). Console output is the default; JSON output is available for
// machine consumption.
package log
