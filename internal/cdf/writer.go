package cdf

import (
	"encoding/binary"
)

// writer builds a big-endian header with the field widths of one format
// version. Offsets are written as placeholders and patched once the data
// layout is known.
type writer struct {
	buf    []byte
	layout layout
}

func newWriter(l layout) *writer {
	return &writer{layout: l}
}

// pos returns the current write position.
func (w *writer) pos() int {
	return len(w.buf)
}

func (w *writer) bytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *writer) uintN(v uint64, n int) {
	if n == 4 {
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
		return
	}
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// nonNeg writes a NON_NEG field.
func (w *writer) nonNeg(v uint64) {
	w.uintN(v, w.layout.nonNegSize)
}

// offset writes a variable begin offset.
func (w *writer) offset(v uint64) {
	w.uintN(v, w.layout.offsetSize)
}

// patchOffset overwrites an offset previously written at position at.
func (w *writer) patchOffset(at int, v uint64) {
	if w.layout.offsetSize == 4 {
		binary.BigEndian.PutUint32(w.buf[at:], uint32(v))
		return
	}
	binary.BigEndian.PutUint64(w.buf[at:], v)
}

// padded writes b followed by zero bytes up to the next 4-byte boundary.
func (w *writer) padded(b []byte) {
	w.bytes(b)
	for i := uint64(len(b)); i < pad(uint64(len(b))); i++ {
		w.buf = append(w.buf, 0)
	}
}

// name writes a length-prefixed, padded name.
func (w *writer) name(s string) {
	w.nonNeg(uint64(len(s)))
	w.padded([]byte(s))
}
