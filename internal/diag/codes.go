package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// Rebuild failures, one per error kind of the pass.
	RebuildUnsupported Code = 1001
	RebuildLayout      Code = 1002
	RebuildOverflow    Code = 1003
	RebuildMalformed   Code = 1004
	RebuildCancelled   Code = 1005

	// Checks on the rebuilt module.
	VerifyInvalid    Code = 2001
	VerifyRestricted Code = 2002

	// Reading and writing module files.
	IOReadFailed    Code = 3001
	IODecodeFailed  Code = 3002
	IOWriteFailed   Code = 3003
	IOSchemaVersion Code = 3004

	// Configuration.
	CfgInvalid Code = 4001

	// Informational.
	InfoNoChange Code = 9001
)

var codeDescription = map[Code]string{
	UnknownCode:        "Unknown error",
	RebuildUnsupported: "Construct has no bytecode form",
	RebuildLayout:      "Aggregate cannot be flattened",
	RebuildOverflow:    "Value does not fit its target width",
	RebuildMalformed:   "Input module breaks its own invariants",
	RebuildCancelled:   "Rebuild cancelled",
	VerifyInvalid:      "Rebuilt module is not well formed",
	VerifyRestricted:   "Rebuilt module uses types outside the bytecode vocabulary",
	IOReadFailed:       "Cannot read module file",
	IODecodeFailed:     "Cannot decode module",
	IOWriteFailed:      "Cannot write module file",
	IOSchemaVersion:    "Unsupported module schema version",
	CfgInvalid:         "Invalid configuration",
	InfoNoChange:       "Module has no definitions to rebuild",
}

// ID is the stable short form, for example RBD1001.
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("RBD%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("VFY%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("CFG%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("INF%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
