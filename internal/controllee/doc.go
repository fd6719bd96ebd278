// Package controllee simulates a tunable receiver that answers VRT control
// packets over UDP.
//
// Ownership boundary:
// - bandwidth / frequency range policy and applied state
// - validation, execution and query-state ack generation
// - admin HTTP surface (/health, /state, /metrics)
package controllee
