package classfile

import "fmt"

// Attribute is a named attribute of a class, field, method or Code. Encode
// returns the body without the name index and length header; it may intern
// constants.
type Attribute interface {
	Name() string
	Encode(pool *ConstantPool) ([]byte, error)
}

// WriteAttribute writes attribute_name_index, attribute_length and body.
func WriteAttribute(w *Buffer, pool *ConstantPool, a Attribute) error {
	body, err := a.Encode(pool)
	if err != nil {
		return fmt.Errorf("%s attribute: %w", a.Name(), err)
	}
	w.WriteU2(pool.AddUtf8(a.Name()))
	w.WriteU4(uint32(len(body)))
	w.Write(body)
	return nil
}

func writeAttributes(w *Buffer, pool *ConstantPool, attrs []Attribute) error {
	w.WriteU2(uint16(len(attrs)))
	for _, a := range attrs {
		if err := WriteAttribute(w, pool, a); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// InnerClasses
// ---------------------------------------------------------------------------

// InnerClass is one entry of an InnerClasses attribute.
type InnerClass struct {
	Inner  string
	Outer  string
	Simple string
	Flags  AccessFlags
}

// InnerClasses registers nested classes with their outer class.
type InnerClasses struct {
	Classes []InnerClass
}

// Add registers inner as a member of outer under its simple name.
func (ic *InnerClasses) Add(inner, outer, simple string, flags AccessFlags) {
	ic.Classes = append(ic.Classes, InnerClass{Inner: inner, Outer: outer, Simple: simple, Flags: flags})
}

func (ic *InnerClasses) Name() string { return "InnerClasses" }

func (ic *InnerClasses) Encode(pool *ConstantPool) ([]byte, error) {
	var w Buffer
	w.WriteU2(uint16(len(ic.Classes)))
	for _, c := range ic.Classes {
		w.WriteU2(pool.AddClass(c.Inner))
		w.WriteU2(pool.AddClass(c.Outer))
		w.WriteU2(pool.AddUtf8(c.Simple))
		w.WriteU2(uint16(c.Flags))
	}
	return w.Bytes(), nil
}

// ---------------------------------------------------------------------------
// SourceFile
// ---------------------------------------------------------------------------

// SourceFile names the source the class was compiled from.
type SourceFile struct {
	File string
}

func (s *SourceFile) Name() string { return "SourceFile" }

func (s *SourceFile) Encode(pool *ConstantPool) ([]byte, error) {
	var w Buffer
	w.WriteU2(pool.AddUtf8(s.File))
	return w.Bytes(), nil
}

// ---------------------------------------------------------------------------
// Raw
// ---------------------------------------------------------------------------

// RawAttribute is an attribute kept as undecoded bytes, as produced by Parse.
type RawAttribute struct {
	AttrName string
	Body     []byte
}

func (r *RawAttribute) Name() string { return r.AttrName }

func (r *RawAttribute) Encode(*ConstantPool) ([]byte, error) { return r.Body, nil }
