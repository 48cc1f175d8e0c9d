package ir

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"bcrebuild/internal/layout"
	"bcrebuild/internal/types"
)

// MaxAddressLookup bounds how many address computations and pointer
// casts DecomposeAddress looks through.
const MaxAddressLookup = 6

// ErrOffsetOverflow reports a constant byte offset or stride that does
// not fit in int64.
var ErrOffsetOverflow = errors.New("address offset overflows int64")

// ScaledIndex is a variable index multiplied by a byte stride.
type ScaledIndex struct {
	Value  *Value
	Stride int64
}

// AddressTerms expresses an address as Base + Offset + sum(Index*Stride),
// all in bytes.
type AddressTerms struct {
	Base    *Value
	Offset  int64
	Indices []ScaledIndex
}

func (t *AddressTerms) addIndex(v *Value, stride int64) error {
	for i := range t.Indices {
		if t.Indices[i].Value != v {
			continue
		}
		sum, err := addOffset(t.Indices[i].Stride, stride)
		if err != nil {
			return err
		}
		t.Indices[i].Stride = sum
		if sum == 0 {
			t.Indices = append(t.Indices[:i], t.Indices[i+1:]...)
		}
		return nil
	}
	if stride != 0 {
		t.Indices = append(t.Indices, ScaledIndex{Value: v, Stride: stride})
	}
	return nil
}

func addOffset(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrOffsetOverflow
	}
	return sum, nil
}

// mulOffset returns c*size; size is a layout size and never negative.
func mulOffset(c, size int64) (int64, error) {
	neg := c < 0
	mag := uint64(c) //nolint:gosec // magnitude is taken below
	if neg {
		mag = -mag
	}
	hi, lo := bits.Mul64(mag, uint64(size)) //nolint:gosec // size >= 0
	limit := uint64(math.MaxInt64)
	if neg {
		limit++
	}
	if hi != 0 || lo > limit {
		return 0, ErrOffsetOverflow
	}
	if neg {
		return -int64(lo), nil //nolint:gosec // lo <= 1<<63
	}
	return int64(lo), nil //nolint:gosec // lo <= MaxInt64
}

// DecomposeAddress splits v into a base pointer, a constant byte offset
// and scaled variable indices, using eng for sizes and field offsets.
// Chained address computations and pointer-to-pointer bitcasts are
// looked through up to MaxAddressLookup levels; the same index value
// appearing more than once is merged into one term.
func DecomposeAddress(v *Value, eng *layout.Engine) (AddressTerms, error) {
	var terms AddressTerms
	in := eng.Types
	for depth := 0; depth < MaxAddressLookup; depth++ {
		if v.Kind != ValueInstr || v.Def == nil {
			break
		}
		def := v.Def
		if def.Kind == InstrCast && def.Cast.Op == CastBitCast &&
			in.IsPointer(def.Cast.X.Type) && in.IsPointer(v.Type) {
			v = def.Cast.X
			continue
		}
		if def.Kind != InstrGEP {
			break
		}
		if err := accumulateGEP(&terms, def, eng); err != nil {
			return AddressTerms{}, err
		}
		v = def.GEP.Base
	}
	terms.Base = v
	return terms, nil
}

func accumulateGEP(terms *AddressTerms, def *Instr, eng *layout.Engine) error {
	in := eng.Types
	cur := def.GEP.Base.Type
	for i, idx := range def.GEP.Indices {
		if in.KindOf(cur) == types.KindStruct {
			c, ok := ConstIntValue(idx)
			if !ok {
				return fmt.Errorf("index %d into struct %s is not constant", i, in.String(cur))
			}
			off, err := eng.FieldOffset(cur, int(c))
			if err != nil {
				return err
			}
			if terms.Offset, err = addOffset(terms.Offset, int64(off)); err != nil {
				return fmt.Errorf("field %d of %s: %w", c, in.String(cur), err)
			}
			field, ok := in.ElemAt(cur, int(c))
			if !ok {
				return fmt.Errorf("struct %s has no field %d", in.String(cur), c)
			}
			cur = field
			continue
		}
		elem, ok := in.ElemAt(cur, 0)
		if !ok {
			return fmt.Errorf("index %d steps into non-composite %s", i, in.String(cur))
		}
		size, err := eng.SizeOf(elem)
		if err != nil {
			return err
		}
		if c, ok := ConstIntValue(idx); ok {
			off, err := mulOffset(c, int64(size))
			if err == nil {
				terms.Offset, err = addOffset(terms.Offset, off)
			}
			if err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		} else if err := terms.addIndex(idx, int64(size)); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
		cur = elem
	}
	return nil
}
