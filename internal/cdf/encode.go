package cdf

import (
	"bytes"
	"fmt"

	"github.com/dreamware/ncmerge/internal/container"
)

// maxVSize is the saturated vsize written by 32-bit versions for variables
// too large to describe.
const maxVSize = 1<<32 - 1

// Encode serializes c in the classic-family format matching c.Format().
func Encode(c *container.Container) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo appends the serialized form of c to buf. On error buf may hold a
// partial header.
//
// The header is written first with placeholder begin offsets. Once its size
// is known the data section is laid out (fixed variables in definition
// order, then the interleaved records) and the offsets are patched.
func EncodeTo(buf *bytes.Buffer, c *container.Container) error {
	version, err := VersionFor(c.Format())
	if err != nil {
		return err
	}
	l, err := layoutFor(version)
	if err != nil {
		return err
	}

	dims := c.Dimensions()
	dimIDs := make(map[string]int, len(dims))
	var numrecs uint64
	for i, d := range dims {
		dimIDs[d.Name] = i
		length := d.Len
		if d.Unlimited {
			numrecs = d.Len
			length = 0
		}
		if length > l.maxNonNeg() {
			return fmt.Errorf("%w: dimension %q has length %d", ErrTooLarge, d.Name, d.Len)
		}
	}
	if numrecs > l.maxNonNeg() {
		return fmt.Errorf("%w: %d records", ErrTooLarge, numrecs)
	}

	w := newWriter(l)
	w.bytes(Magic[:])
	w.bytes([]byte{version})
	w.nonNeg(numrecs)

	if len(dims) == 0 {
		w.uint32(tagAbsent)
		w.nonNeg(0)
	} else {
		w.uint32(tagDimension)
		w.nonNeg(uint64(len(dims)))
		for _, d := range dims {
			w.name(d.Name)
			if d.Unlimited {
				w.nonNeg(0)
			} else {
				w.nonNeg(d.Len)
			}
		}
	}

	globals, err := c.Attributes(container.Global)
	if err != nil {
		return err
	}
	writeAttributes(w, globals)

	vars := c.Variables()
	beginAt := make([]int, len(vars))
	if len(vars) == 0 {
		w.uint32(tagAbsent)
		w.nonNeg(0)
	} else {
		w.uint32(tagVariable)
		w.nonNeg(uint64(len(vars)))
		for i, v := range vars {
			w.name(v.Name())
			names := v.Dims()
			w.nonNeg(uint64(len(names)))
			for _, dn := range names {
				w.nonNeg(uint64(dimIDs[dn]))
			}
			writeAttributes(w, v.Attributes())
			w.uint32(uint32(v.Type()))
			vsize := pad(v.RecordSize())
			if l.nonNegSize == 4 && vsize > maxVSize {
				vsize = maxVSize
			}
			w.nonNeg(vsize)
			beginAt[i] = w.pos()
			w.offset(0)
		}
	}

	// Lay out the data section behind the header.
	next := uint64(w.pos())
	begins := make([]uint64, len(vars))
	for i, v := range vars {
		if v.IsRecord() {
			continue
		}
		begins[i] = next
		next += pad(v.Len())
	}
	recVars, recSize := recordLayout(c)
	recStart := next
	for i, v := range vars {
		if !v.IsRecord() {
			continue
		}
		begins[i] = next
		if len(recVars) == 1 {
			next += v.RecordSize()
		} else {
			next += pad(v.RecordSize())
		}
	}
	for i, v := range vars {
		if begins[i] > l.maxOffset() {
			return fmt.Errorf("%w: variable %q begins at offset %d", ErrTooLarge, v.Name(), begins[i])
		}
		w.patchOffset(beginAt[i], begins[i])
	}

	buf.Grow(int(recStart) + int(numrecs*recSize))
	buf.Write(w.buf)
	var zeros [alignment]byte
	for _, v := range vars {
		if v.IsRecord() {
			continue
		}
		data := v.Data()
		buf.Write(data)
		buf.Write(zeros[:pad(uint64(len(data)))-uint64(len(data))])
	}
	for rec := uint64(0); rec < numrecs; rec++ {
		for _, v := range recVars {
			size := v.RecordSize()
			buf.Write(v.Data()[rec*size : (rec+1)*size])
			if len(recVars) > 1 {
				buf.Write(zeros[:pad(size)-size])
			}
		}
	}
	return nil
}

func writeAttributes(w *writer, attrs []container.Attribute) {
	if len(attrs) == 0 {
		w.uint32(tagAbsent)
		w.nonNeg(0)
		return
	}
	w.uint32(tagAttribute)
	w.nonNeg(uint64(len(attrs)))
	for _, a := range attrs {
		w.name(a.Name)
		w.uint32(uint32(a.Value.Type()))
		w.nonNeg(uint64(a.Value.Len()))
		w.padded(a.Value.Bytes())
	}
}
