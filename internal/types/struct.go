package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// StructInfo stores the field list of a literal struct type.
type StructInfo struct {
	Fields []TypeID
	Packed bool
}

// RegisterStruct creates or finds a literal struct type with the given fields.
func (in *Interner) RegisterStruct(fields []TypeID, packed bool) TypeID {
	if in != nil {
		for id := TypeID(1); int(id) < len(in.types); id++ {
			tt := in.types[id]
			if tt.Kind != KindStruct || int(tt.Payload) >= len(in.structs) {
				continue
			}
			info := in.structs[tt.Payload]
			if info.Packed == packed && slices.Equal(info.Fields, fields) {
				return id
			}
		}
	}
	slot := in.appendStructInfo(StructInfo{Fields: fields, Packed: packed})
	return in.internRaw(Type{Kind: KindStruct, Payload: slot})
}

// StructInfo returns metadata for the provided struct TypeID.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return nil, false
	}
	if int(tt.Payload) >= len(in.structs) {
		return nil, false
	}
	return &in.structs[tt.Payload], true
}

func (in *Interner) appendStructInfo(info StructInfo) uint32 {
	in.structs = append(in.structs, StructInfo{
		Fields: slices.Clone(info.Fields),
		Packed: info.Packed,
	})
	slot, err := safecast.Conv[uint32](len(in.structs) - 1)
	if err != nil {
		panic(fmt.Errorf("struct info overflow: %w", err))
	}
	return slot
}
