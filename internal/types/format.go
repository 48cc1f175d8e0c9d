package types

import (
	"fmt"
	"strings"
)

// String renders id in the textual IR syntax understood by Parse.
func (in *Interner) String(id TypeID) string {
	var sb strings.Builder
	in.writeType(&sb, id, 0)
	return sb.String()
}

// maxFormatDepth guards against malformed self-referencing descriptors.
const maxFormatDepth = 64

func (in *Interner) writeType(sb *strings.Builder, id TypeID, depth int) {
	if depth > maxFormatDepth {
		sb.WriteString("...")
		return
	}
	tt, ok := in.Lookup(id)
	if !ok {
		fmt.Fprintf(sb, "<type#%d>", id)
		return
	}
	switch tt.Kind {
	case KindVoid:
		sb.WriteString("void")
	case KindLabel:
		sb.WriteString("label")
	case KindInt:
		fmt.Fprintf(sb, "i%d", tt.Width)
	case KindFloat:
		if tt.Width == Width64 {
			sb.WriteString("double")
		} else {
			sb.WriteString("float")
		}
	case KindPointer:
		in.writeType(sb, tt.Elem, depth+1)
		sb.WriteByte('*')
	case KindArray:
		fmt.Fprintf(sb, "[%d x ", tt.Count)
		in.writeType(sb, tt.Elem, depth+1)
		sb.WriteByte(']')
	case KindStruct:
		info, _ := in.StructInfo(id)
		if info == nil || len(info.Fields) == 0 {
			if info != nil && info.Packed {
				sb.WriteString("<{}>")
			} else {
				sb.WriteString("{}")
			}
			return
		}
		if info.Packed {
			sb.WriteString("<{ ")
		} else {
			sb.WriteString("{ ")
		}
		for i, f := range info.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			in.writeType(sb, f, depth+1)
		}
		if info.Packed {
			sb.WriteString(" }>")
		} else {
			sb.WriteString(" }")
		}
	case KindFn:
		info, _ := in.FnInfo(id)
		if info == nil {
			sb.WriteString("<fn?>")
			return
		}
		in.writeType(sb, info.Result, depth+1)
		sb.WriteString(" (")
		for i, p := range info.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			in.writeType(sb, p, depth+1)
		}
		if info.Variadic {
			if len(info.Params) > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("...")
		}
		sb.WriteByte(')')
	default:
		fmt.Fprintf(sb, "<%s>", tt.Kind)
	}
}
