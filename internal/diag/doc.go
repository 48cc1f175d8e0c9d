// Package diag defines the diagnostic model shared by the loader, the
// rebuild pass and the output verifier.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity: Info, Warning or Error (severity.go).
//   - Code: numeric identifier with a stable string form such as RBD1001.
//   - Message: short, human oriented text.
//   - Pos: the source position of the offending instruction, when known.
//   - Func and Instr: the enclosing function and the rendered instruction.
//   - Notes: optional secondary positions with extra context.
//
// # Emitting diagnostics
//
// Producers report through a Reporter so they do not depend on storage.
// BagReporter collects into a Bag, which supports limits, sorting and
// deduplication; DedupReporter filters repeated findings before they
// reach the next reporter.
//
// Package diag does no formatting or IO. Rendering lives in
// internal/diagfmt.
package diag
