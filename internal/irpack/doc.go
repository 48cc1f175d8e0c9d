// Package irpack is the on-disk interchange form of an ir.Module.
//
// A module is stored as a File: functions, blocks and instructions with
// types written in the textual IR syntax and operands written as they
// are printed ("%x", "@f", "i32 7", "i8* null"). The same structure is
// encoded as msgpack for tool-to-tool exchange and as YAML for fixtures
// written by hand.
//
// Decoding resolves forward references: phi operands may name values
// defined later, and blocks may appear in any order as long as every
// non-phi operand is defined in a block that can be built first.
// Identifiers are normalised to Unicode NFC so that visually identical
// names compare equal.
package irpack
