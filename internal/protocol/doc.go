// Package protocol owns the VRT command wire primitives shared by every layer.
//
// Ownership boundary:
// - fixed-point and 32-bit field codecs (network byte order)
// - packet type and sequence counter values
// - fault taxonomy (request, encoding, parse errors)
//
// Packet layout lives in frame (prologue), schema (bit tables), cif (field
// lists) and command (control/ack packets).
package protocol
