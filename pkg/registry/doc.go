// Package registry tracks which configuration files participate in
// reconciliation. The registry is a small YAML file in the state directory
// mapping instance names to configuration paths; it carries no service
// state, since desired state is always re-derived from the configurations
// themselves.
package registry
