package cdf

import (
	"cmp"
	"fmt"
	"math/bits"

	"golang.org/x/exp/slices"

	"github.com/dreamware/ncmerge/internal/container"
)

// rawVariable is a variable entry as it appears in the header.
type rawVariable struct {
	name   string
	dimIDs []int
	attrs  []container.Attribute
	typ    container.Type
	begin  uint64
}

// rawHeader is the parsed header before it is turned into a container.
type rawHeader struct {
	layout  layout
	format  container.Format
	numrecs uint64
	dims    []container.Dimension
	attrs   []container.Attribute
	vars    []rawVariable
}

// Decode parses a classic, 64-bit offset or cdf5 container. The result is
// sealed read-only.
//
// Decode never trusts header counts: every count is checked against the
// remaining input before anything is allocated for it, and variable extents
// may neither start inside the header nor overlap one another.
func Decode(data []byte) (*container.Container, error) {
	if len(data) < 4 || data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] {
		return nil, ErrNotCDF
	}
	l, err := layoutFor(data[3])
	if err != nil {
		return nil, err
	}
	r := newReader(data, l)
	r.pos = 4
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if err := checkSizes(h, uint64(r.pos), uint64(len(data))); err != nil {
		return nil, err
	}
	return build(h, data)
}

// extent is the byte range a variable occupies: the whole payload of a
// fixed variable, the first record of a record variable.
type extent struct {
	name  string
	begin uint64
	size  uint64
}

// checkSizes rejects headers whose variables cannot fit in the input, start
// inside the header, or share bytes with another variable, before any
// payload is allocated for them. The record section must follow the last
// fixed variable.
func checkSizes(h *rawHeader, headerEnd, total uint64) error {
	var fixed, records []extent
	for _, rv := range h.vars {
		isRecord := len(rv.dimIDs) > 0 && h.dims[rv.dimIDs[0]].Unlimited
		ids := rv.dimIDs
		if isRecord {
			ids = ids[1:]
		}
		size := uint64(rv.typ.Size())
		for _, id := range ids {
			hi, lo := bits.Mul64(size, h.dims[id].Len)
			if hi != 0 {
				return fmt.Errorf("%w: variable %q overflows", ErrMalformed, rv.name)
			}
			size = lo
		}
		if isRecord {
			// Record payloads are bounded once numrecs is checked.
			records = append(records, extent{name: rv.name, begin: rv.begin, size: size})
			continue
		}
		if rv.begin > total || size > total-rv.begin {
			return fmt.Errorf("%w: variable %q needs %d bytes at offset %d, input is %d bytes", ErrTruncated, rv.name, size, rv.begin, total)
		}
		fixed = append(fixed, extent{name: rv.name, begin: rv.begin, size: size})
	}
	fixedEnd, err := checkExtents(fixed, headerEnd)
	if err != nil {
		return err
	}
	_, err = checkExtents(records, fixedEnd)
	return err
}

// checkExtents sorts extents by offset and requires each non-empty one to
// start at or after floor and after the end of the previous one. It returns
// the end of the last extent, or floor when there is none.
func checkExtents(list []extent, floor uint64) (uint64, error) {
	slices.SortFunc(list, func(a, b extent) int { return cmp.Compare(a.begin, b.begin) })
	end := floor
	prev := ""
	for _, e := range list {
		if e.size == 0 {
			continue
		}
		if e.begin < end {
			if prev == "" {
				return 0, fmt.Errorf("%w: variable %q starts at offset %d, before %d", ErrMalformed, e.name, e.begin, end)
			}
			return 0, fmt.Errorf("%w: variable %q at offset %d overlaps %q", ErrMalformed, e.name, e.begin, prev)
		}
		if e.begin > ^uint64(0)-e.size {
			return 0, fmt.Errorf("%w: variable %q overflows", ErrMalformed, e.name)
		}
		end = e.begin + e.size
		prev = e.name
	}
	return end, nil
}

func readHeader(r *reader) (*rawHeader, error) {
	format, err := FormatFor(r.layout.version)
	if err != nil {
		return nil, err
	}
	h := &rawHeader{layout: r.layout, format: format}
	if h.numrecs, err = r.nonNeg(); err != nil {
		return nil, err
	}
	if h.dims, err = readDimensions(r); err != nil {
		return nil, err
	}
	if h.attrs, err = readAttributes(r); err != nil {
		return nil, err
	}
	if h.vars, err = readVariables(r, len(h.dims)); err != nil {
		return nil, err
	}
	return h, nil
}

// listTag reads a list tag and its element count. An absent list must
// carry a zero count.
func (r *reader) listTag(want uint32, minElemSize uint64) (int, error) {
	tag, err := r.uint32()
	if err != nil {
		return 0, err
	}
	n, err := r.count(minElemSize)
	if err != nil {
		return 0, err
	}
	switch tag {
	case tagAbsent:
		if n != 0 {
			return 0, fmt.Errorf("%w: absent list with %d elements", ErrMalformed, n)
		}
		return 0, nil
	case want:
		return n, nil
	default:
		return 0, fmt.Errorf("%w: tag 0x%x where 0x%x expected", ErrMalformed, tag, want)
	}
}

func readDimensions(r *reader) ([]container.Dimension, error) {
	n, err := r.listTag(tagDimension, uint64(2*r.layout.nonNegSize))
	if err != nil {
		return nil, err
	}
	dims := make([]container.Dimension, 0, n)
	for i := 0; i < n; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		length, err := r.nonNeg()
		if err != nil {
			return nil, err
		}
		dims = append(dims, container.Dimension{Name: name, Len: length, Unlimited: length == 0})
	}
	return dims, nil
}

func readAttributes(r *reader) ([]container.Attribute, error) {
	n, err := r.listTag(tagAttribute, uint64(2*r.layout.nonNegSize+4))
	if err != nil {
		return nil, err
	}
	attrs := make([]container.Attribute, 0, n)
	for i := 0; i < n; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		code, err := r.uint32()
		if err != nil {
			return nil, err
		}
		t := container.Type(code)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: attribute %q has type code %d", ErrMalformed, name, code)
		}
		nelems, err := r.count(uint64(t.Size()))
		if err != nil {
			return nil, err
		}
		raw, err := r.padded(uint64(nelems) * uint64(t.Size()))
		if err != nil {
			return nil, err
		}
		v, err := container.NewAttributeValue(t, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %q: %v", ErrMalformed, name, err)
		}
		attrs = append(attrs, container.Attribute{Name: name, Value: v})
	}
	return attrs, nil
}

func readVariables(r *reader, ndims int) ([]rawVariable, error) {
	n, err := r.listTag(tagVariable, uint64(4*r.layout.nonNegSize+4+r.layout.offsetSize))
	if err != nil {
		return nil, err
	}
	vars := make([]rawVariable, 0, n)
	for i := 0; i < n; i++ {
		var v rawVariable
		if v.name, err = r.name(); err != nil {
			return nil, err
		}
		rank, err := r.count(uint64(r.layout.nonNegSize))
		if err != nil {
			return nil, err
		}
		v.dimIDs = make([]int, rank)
		for j := range v.dimIDs {
			id, err := r.nonNeg()
			if err != nil {
				return nil, err
			}
			if id >= uint64(ndims) {
				return nil, fmt.Errorf("%w: variable %q references dimension id %d of %d", ErrMalformed, v.name, id, ndims)
			}
			v.dimIDs[j] = int(id)
		}
		if v.attrs, err = readAttributes(r); err != nil {
			return nil, err
		}
		code, err := r.uint32()
		if err != nil {
			return nil, err
		}
		v.typ = container.Type(code)
		if !v.typ.Valid() {
			return nil, fmt.Errorf("%w: variable %q has type code %d", ErrMalformed, v.name, code)
		}
		// vsize is recomputed from the shape; it saturates for large
		// variables and cannot be relied on.
		if _, err := r.nonNeg(); err != nil {
			return nil, err
		}
		if v.begin, err = r.offset(); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// build turns a parsed header into a container and loads every payload
// from data.
func build(h *rawHeader, data []byte) (*container.Container, error) {
	c, err := container.New(h.format)
	if err != nil {
		return nil, err
	}
	malformed := func(err error) error {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, d := range h.dims {
		if err := c.DefineDimension(d.Name, d.Len, d.Unlimited); err != nil {
			return nil, malformed(err)
		}
	}
	for _, a := range h.attrs {
		if err := c.PutAttribute(container.Global, a.Name, a.Value); err != nil {
			return nil, malformed(err)
		}
	}
	for _, rv := range h.vars {
		names := make([]string, len(rv.dimIDs))
		for i, id := range rv.dimIDs {
			names[i] = h.dims[id].Name
		}
		if _, err := c.DefineVariable(rv.name, rv.typ, names); err != nil {
			return nil, malformed(err)
		}
		for _, a := range rv.attrs {
			if err := c.PutAttribute(rv.name, a.Name, a.Value); err != nil {
				return nil, malformed(err)
			}
		}
	}
	if err := c.EndDef(); err != nil {
		return nil, err
	}

	recVars, recSize := recordLayout(c)
	numrecs := h.numrecs
	if numrecs == h.layout.streaming() {
		numrecs = streamedRecords(h, c, recVars, recSize, uint64(len(data)))
	}
	if len(recVars) > 0 && numrecs > 0 {
		if recSize == 0 || numrecs > uint64(len(data))/recSize {
			return nil, fmt.Errorf("%w: %d records of %d bytes, input is %d bytes", ErrTruncated, numrecs, recSize, len(data))
		}
		if err := c.GrowUnlimited(numrecs); err != nil {
			return nil, malformed(err)
		}
	}

	for i, rv := range h.vars {
		v, _ := c.Variable(rv.name)
		var payload []byte
		if !v.IsRecord() {
			payload, err = slice(data, rv.begin, v.Len())
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", rv.name, err)
			}
		} else {
			if numrecs == 0 {
				continue
			}
			payload = make([]byte, 0, v.Len())
			for rec := uint64(0); rec < numrecs; rec++ {
				chunk, err := slice(data, rv.begin+rec*recSize, v.RecordSize())
				if err != nil {
					return nil, fmt.Errorf("variable %q record %d: %w", rv.name, rec, err)
				}
				payload = append(payload, chunk...)
			}
		}
		if err := c.PutData(h.vars[i].name, payload); err != nil {
			return nil, malformed(err)
		}
	}
	c.Seal()
	return c, nil
}

// recordLayout returns the record variables in definition order and the
// stride between consecutive records. A lone record variable is stored
// without per-record padding.
func recordLayout(c *container.Container) ([]*container.Variable, uint64) {
	var recVars []*container.Variable
	for _, v := range c.Variables() {
		if v.IsRecord() {
			recVars = append(recVars, v)
		}
	}
	if len(recVars) == 1 {
		return recVars, recVars[0].RecordSize()
	}
	var size uint64
	for _, v := range recVars {
		size += pad(v.RecordSize())
	}
	return recVars, size
}

// streamedRecords derives the record count from the input size when the
// header carries the streaming marker.
func streamedRecords(h *rawHeader, c *container.Container, recVars []*container.Variable, recSize, total uint64) uint64 {
	if len(recVars) == 0 || recSize == 0 {
		return 0
	}
	start := total
	for _, rv := range h.vars {
		if v, ok := c.Variable(rv.name); ok && v.IsRecord() && rv.begin < start {
			start = rv.begin
		}
	}
	if start >= total {
		return 0
	}
	return (total - start) / recSize
}

func slice(data []byte, begin, n uint64) ([]byte, error) {
	if begin > uint64(len(data)) || n > uint64(len(data))-begin {
		return nil, fmt.Errorf("%w: %d bytes at offset %d, input is %d bytes", ErrTruncated, n, begin, len(data))
	}
	return data[begin : begin+n], nil
}
