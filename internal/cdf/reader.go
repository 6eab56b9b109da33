package cdf

import (
	"encoding/binary"
	"fmt"
)

// reader is a big-endian cursor over an in-memory container with the field
// widths of one format version.
type reader struct {
	buf    []byte
	pos    uint64
	layout layout
}

func newReader(buf []byte, l layout) *reader {
	return &reader{buf: buf, layout: l}
}

// remaining returns the number of unread bytes.
func (r *reader) remaining() uint64 {
	return uint64(len(r.buf)) - r.pos
}

// bytes returns the next n bytes without copying.
func (r *reader) bytes(n uint64) ([]byte, error) {
	if n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.pos, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) uintN(n int) (uint64, error) {
	b, err := r.bytes(uint64(n))
	if err != nil {
		return 0, err
	}
	switch n {
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: field width %d", ErrMalformed, n)
	}
}

// nonNeg reads a NON_NEG field.
func (r *reader) nonNeg() (uint64, error) {
	return r.uintN(r.layout.nonNegSize)
}

// offset reads a variable begin offset.
func (r *reader) offset() (uint64, error) {
	return r.uintN(r.layout.offsetSize)
}

// count reads an element count and checks that at least minSize bytes per
// element remain, so corrupt counts cannot force huge allocations.
func (r *reader) count(minSize uint64) (int, error) {
	n, err := r.nonNeg()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && n > r.remaining()/minSize {
		return 0, fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrTruncated, n, r.remaining())
	}
	return int(n), nil
}

// padded reads n bytes and skips the padding to the next 4-byte boundary.
func (r *reader) padded(n uint64) ([]byte, error) {
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	if _, err := r.bytes(pad(n) - n); err != nil {
		return nil, err
	}
	return b, nil
}

// name reads a length-prefixed, padded name.
func (r *reader) name() (string, error) {
	n, err := r.count(1)
	if err != nil {
		return "", err
	}
	b, err := r.padded(uint64(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
