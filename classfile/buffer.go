package classfile

import (
	"encoding/binary"
	"unicode/utf16"
)

// Buffer is an append-only big-endian writer. Class files are big-endian
// throughout; PutU2 is the one escape hatch, used to backpatch jumps and
// length prefixes.
type Buffer struct {
	b []byte
}

// Len returns the number of bytes written so far.
func (w *Buffer) Len() int { return len(w.b) }

// Bytes returns the written bytes. The slice aliases the buffer.
func (w *Buffer) Bytes() []byte { return w.b }

func (w *Buffer) WriteU1(v uint8) { w.b = append(w.b, v) }

func (w *Buffer) WriteU2(v uint16) { w.b = binary.BigEndian.AppendUint16(w.b, v) }

func (w *Buffer) WriteU4(v uint32) { w.b = binary.BigEndian.AppendUint32(w.b, v) }

func (w *Buffer) WriteI1(v int8) { w.WriteU1(uint8(v)) }

func (w *Buffer) WriteI2(v int16) { w.WriteU2(uint16(v)) }

func (w *Buffer) WriteI4(v int32) { w.WriteU4(uint32(v)) }

func (w *Buffer) Write(p []byte) { w.b = append(w.b, p...) }

// PutU2 overwrites two bytes at offset.
func (w *Buffer) PutU2(offset int, v uint16) {
	binary.BigEndian.PutUint16(w.b[offset:], v)
}

// WriteUTF8 writes s as a u2 length followed by its modified UTF-8 encoding
// (NUL as two bytes, supplementary characters as surrogate pairs).
func (w *Buffer) WriteUTF8(s string) {
	enc := ModifiedUTF8(s)
	w.WriteU2(uint16(len(enc)))
	w.Write(enc)
}

// ModifiedUTF8 encodes s the way the class-file format stores CONSTANT_Utf8.
func ModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = appendUTF8Unit(out, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendUTF8Unit(out, hi)
			out = appendUTF8Unit(out, lo)
		}
	}
	return out
}

func appendUTF8Unit(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}

// DecodeModifiedUTF8 reverses ModifiedUTF8.
func DecodeModifiedUTF8(b []byte) string {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
