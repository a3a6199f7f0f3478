// Package model expands service definitions into the concrete instances a
// process manager installs. Expansion is deterministic so that instance
// fingerprints only change when the definition changes.
package model
