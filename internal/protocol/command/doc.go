// Package command models VRT command packets: the control packet a controller
// sends and the acknowledge packet a controllee returns.
//
// Payload layout after the prologue:
// - CAM word, message id word
// - controllee id, controller id (1 word each, 4 for UUID form) when enabled in CAM
// - control / query-state ack: CIF0 then fields in descending bit order
// - validation / execution ack: WIF0 (CAM warnings) and EIF0 (CAM errors), their
//   continuation words, then one response word per flagged field
package command
