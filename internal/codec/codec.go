// Package codec is the boundary between the merge engine and the on-disk
// container formats. An Adapter opens containers from memory, creates empty
// ones and serializes finished ones into caller-owned buffers.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/dreamware/ncmerge/internal/cdf"
	"github.com/dreamware/ncmerge/internal/container"
)

// ErrUnsupportedFormat is returned for formats the adapter can model but
// not read or write, such as the HDF5-based enhanced formats.
var ErrUnsupportedFormat = errors.New("unsupported container format")

// Adapter is the codec surface used by the merge engine.
type Adapter interface {
	// Open parses a complete container held in memory. The result is
	// read-only and does not alias data.
	Open(data []byte) (*container.Container, error)

	// Create returns an empty container of the given format in define mode.
	Create(format container.Format) (*container.Container, error)

	// Finalize serializes a container that has left define mode. The
	// caller owns the returned buffer and must Release it.
	Finalize(c *container.Container) (*Buffer, error)
}

// maxPooled caps the capacity of buffers returned to the pool so one large
// merge does not pin its memory for the life of the process.
const maxPooled = 64 << 20

// Buffer holds serialized container bytes.
type Buffer struct {
	buf  *bytes.Buffer
	pool *sync.Pool
}

// Bytes returns the serialized bytes. They are valid until Release.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.buf == nil {
		return nil
	}
	return b.buf.Bytes()
}

// Len returns the number of serialized bytes.
func (b *Buffer) Len() int {
	if b == nil || b.buf == nil {
		return 0
	}
	return b.buf.Len()
}

// Release returns the backing storage for reuse. It is safe to call more
// than once.
func (b *Buffer) Release() {
	if b == nil || b.buf == nil {
		return
	}
	buf := b.buf
	b.buf = nil
	if b.pool != nil && buf.Cap() <= maxPooled {
		buf.Reset()
		b.pool.Put(buf)
	}
}

// CDF is the Adapter for the classic family of formats: classic, 64-bit
// offset and cdf5. Enhanced containers can be created and populated in
// memory but not opened or finalized.
//
// A CDF is safe for concurrent use.
type CDF struct {
	pool sync.Pool
}

// NewCDF returns a classic-family adapter.
func NewCDF() *CDF {
	a := &CDF{}
	a.pool.New = func() any { return new(bytes.Buffer) }
	return a
}

// Open implements Adapter.
func (a *CDF) Open(data []byte) (*container.Container, error) {
	if cdf.IsHDF5(data) {
		return nil, fmt.Errorf("%w: hdf5-based container", ErrUnsupportedFormat)
	}
	c, err := cdf.Decode(data)
	if err != nil {
		if errors.Is(err, cdf.ErrUnsupportedVersion) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, err
	}
	return c, nil
}

// Create implements Adapter.
func (a *CDF) Create(format container.Format) (*container.Container, error) {
	return container.New(format)
}

// Finalize implements Adapter.
func (a *CDF) Finalize(c *container.Container) (*Buffer, error) {
	if c == nil {
		return nil, errors.New("finalize: nil container")
	}
	if c.Format().Enhanced() {
		return nil, fmt.Errorf("%w: cannot serialize %v", ErrUnsupportedFormat, c.Format())
	}
	if c.Mode() == container.ModeDefine {
		return nil, fmt.Errorf("finalize: %w", container.ErrInDefineMode)
	}
	buf := a.pool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := cdf.EncodeTo(buf, c); err != nil {
		buf.Reset()
		a.pool.Put(buf)
		return nil, err
	}
	return &Buffer{buf: buf, pool: &a.pool}, nil
}
