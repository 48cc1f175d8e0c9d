package layout

import (
	"fmt"

	"bcrebuild/internal/types"
)

// LayoutErrorKind enumerates types of layout calculation errors.
type LayoutErrorKind uint8

const (
	// LayoutErrUnsized indicates a type without storage (void, label, function).
	LayoutErrUnsized LayoutErrorKind = iota + 1
	// LayoutErrUnknownType indicates a TypeID the interner does not know.
	LayoutErrUnknownType
	LayoutErrSizeOverflow
)

// LayoutError represents an error during memory layout calculation.
type LayoutError struct {
	Kind LayoutErrorKind
	Type types.TypeID
	Name string // rendered type, when available
	Err  error  // for LayoutErrSizeOverflow
}

func (e *LayoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("type#%d", e.Type)
	}
	switch e.Kind {
	case LayoutErrUnsized:
		return fmt.Sprintf("type %s has no storage size", name)
	case LayoutErrUnknownType:
		return fmt.Sprintf("unknown type %s", name)
	case LayoutErrSizeOverflow:
		if e.Err != nil {
			return fmt.Sprintf("size of %s overflows: %v", name, e.Err)
		}
		return fmt.Sprintf("size of %s overflows", name)
	default:
		return fmt.Sprintf("layout error kind=%d %s", e.Kind, name)
	}
}

func (e *LayoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
