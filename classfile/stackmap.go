package classfile

import (
	"fmt"
	"math"
)

// Verification type tags.
const (
	ItemTop     uint8 = 0
	ItemInteger uint8 = 1
	ItemNull    uint8 = 5
	ItemObject  uint8 = 7
)

// FullFrameTag is the frame_type of a full_frame entry.
const FullFrameTag uint8 = 255

// StackMapTable emits every frame as a full_frame. The compact encodings are
// never produced.
type StackMapTable struct {
	Frames []*Frame
}

func (s *StackMapTable) Name() string { return "StackMapTable" }

func (s *StackMapTable) Encode(pool *ConstantPool) ([]byte, error) {
	var w Buffer
	w.WriteU2(uint16(len(s.Frames)))
	prev := -1
	for _, f := range s.Frames {
		if f.Offset <= prev {
			return nil, &InternalError{Op: "stack map", Err: fmt.Errorf("frame offsets not increasing: %d after %d", f.Offset, prev)}
		}
		delta := f.Offset
		if prev >= 0 {
			delta = f.Offset - prev - 1
		}
		if delta > math.MaxUint16 {
			return nil, &InternalError{Op: "stack map", Err: fmt.Errorf("%w: frame delta %d", ErrCodeTooLarge, delta)}
		}
		prev = f.Offset

		w.WriteU1(FullFrameTag)
		w.WriteU2(uint16(delta))
		locals := f.trimmedLocals()
		w.WriteU2(uint16(len(locals)))
		for _, t := range locals {
			writeVerificationType(&w, pool, t)
		}
		w.WriteU2(uint16(len(f.Stack)))
		for _, t := range f.Stack {
			writeVerificationType(&w, pool, t)
		}
	}
	return w.Bytes(), nil
}

func writeVerificationType(w *Buffer, pool *ConstantPool, t Type) {
	switch t := t.(type) {
	case nil:
		w.WriteU1(ItemTop)
	case Int, Bool:
		w.WriteU1(ItemInteger)
	case Null:
		w.WriteU1(ItemNull)
	default:
		w.WriteU1(ItemObject)
		w.WriteU2(pool.AddClassType(t))
	}
}
