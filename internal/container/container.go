package container

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/exp/slices"
)

// Global is the owner name that addresses container-level attributes in
// the attribute operations. Variable names are never empty, so it cannot
// collide with a variable.
const Global = ""

// FillValueAttr is the conventional attribute that overrides a variable's
// default fill value.
const FillValueAttr = "_FillValue"

// Mode is the lifecycle phase of a container.
type Mode int

const (
	// ModeDefine accepts definitions but no payload writes.
	ModeDefine Mode = iota
	// ModeData accepts payload writes but no definitions.
	ModeData
	// ModeReadOnly accepts nothing; used for containers parsed from bytes.
	ModeReadOnly
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeDefine:
		return "define"
	case ModeData:
		return "data"
	case ModeReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Dimension is a named axis. For an unlimited dimension Len is the current
// number of records.
type Dimension struct {
	Name      string `json:"name"`
	Len       uint64 `json:"length"`
	Unlimited bool   `json:"unlimited,omitempty"`
}

// Variable is a typed array stored in a container. Its fields are only
// changed through Container methods so the payload always matches the
// resolved shape.
type Variable struct {
	name        string
	typ         Type
	dims        []*Dimension
	attrs       attrList
	chunking    *Chunking
	compression *Compression
	data        []byte
}

// Name returns the variable name.
func (v *Variable) Name() string { return v.name }

// Type returns the element type.
func (v *Variable) Type() Type { return v.typ }

// Dims returns the dimension names, outermost first.
func (v *Variable) Dims() []string {
	names := make([]string, len(v.dims))
	for i, d := range v.dims {
		names[i] = d.Name
	}
	return names
}

// Shape returns the current dimension lengths, outermost first.
func (v *Variable) Shape() []uint64 {
	shape := make([]uint64, len(v.dims))
	for i, d := range v.dims {
		shape[i] = d.Len
	}
	return shape
}

// IsRecord reports whether the variable's outermost dimension is unlimited.
func (v *Variable) IsRecord() bool {
	return len(v.dims) > 0 && v.dims[0].Unlimited
}

// Attributes returns the variable's attributes in definition order.
func (v *Variable) Attributes() []Attribute { return v.attrs.clone() }

// Attribute looks up one attribute by name.
func (v *Variable) Attribute(name string) (AttributeValue, bool) { return v.attrs.get(name) }

// Chunking returns a copy of the chunk layout, or nil when none was set.
func (v *Variable) Chunking() *Chunking { return v.chunking.clone() }

// Compression returns a copy of the compression settings, or nil when
// none were set.
func (v *Variable) Compression() *Compression { return v.compression.clone() }

// Data returns the payload in the external representation. The slice must
// not be modified.
func (v *Variable) Data() []byte { return v.data }

// RecordSize returns the byte size of one record of a record variable, or
// of the whole payload of a fixed variable.
func (v *Variable) RecordSize() uint64 {
	size := uint64(v.typ.Size())
	for i, d := range v.dims {
		if i == 0 && d.Unlimited {
			continue
		}
		size *= d.Len
	}
	return size
}

// Len returns the expected payload size for the current shape.
func (v *Variable) Len() uint64 {
	size := v.RecordSize()
	if v.IsRecord() {
		size *= v.dims[0].Len
	}
	return size
}

// fill returns one element of the variable's fill value.
func (v *Variable) fill() []byte {
	if fv, ok := v.attrs.get(FillValueAttr); ok && fv.typ == v.typ && fv.Len() == 1 {
		return fv.data
	}
	return v.typ.DefaultFill()
}

// fillBytes returns n bytes of repeated fill elements.
func (v *Variable) fillBytes(n uint64) []byte {
	elem := v.fill()
	if n == 0 {
		return []byte{}
	}
	return bytes.Repeat(elem, int(n)/len(elem))
}

// Container is the in-memory model of one scientific container.
type Container struct {
	format   Format
	mode     Mode
	dims     []*Dimension
	dimIndex map[string]*Dimension
	vars     []*Variable
	varIndex map[string]*Variable
	attrs    attrList
}

// New returns an empty container of the given format in define mode.
func New(format Format) (*Container, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, format)
	}
	return &Container{
		format:   format,
		mode:     ModeDefine,
		dimIndex: make(map[string]*Dimension),
		varIndex: make(map[string]*Variable),
	}, nil
}

// Format returns the storage format.
func (c *Container) Format() Format { return c.format }

// Mode returns the lifecycle phase.
func (c *Container) Mode() Mode { return c.mode }

// Dimensions returns copies of the dimensions in definition order.
func (c *Container) Dimensions() []Dimension {
	out := make([]Dimension, len(c.dims))
	for i, d := range c.dims {
		out[i] = *d
	}
	return out
}

// Dimension looks up a dimension by name.
func (c *Container) Dimension(name string) (Dimension, bool) {
	d, ok := c.dimIndex[name]
	if !ok {
		return Dimension{}, false
	}
	return *d, true
}

// UnlimitedDimension returns the unlimited dimension, if any.
func (c *Container) UnlimitedDimension() (Dimension, bool) {
	for _, d := range c.dims {
		if d.Unlimited {
			return *d, true
		}
	}
	return Dimension{}, false
}

// Variables returns the variables in definition order.
func (c *Container) Variables() []*Variable {
	return slices.Clone(c.vars)
}

// Variable looks up a variable by name.
func (c *Container) Variable(name string) (*Variable, bool) {
	v, ok := c.varIndex[name]
	return v, ok
}

// Attributes returns the attributes of owner (a variable name or Global)
// in definition order.
func (c *Container) Attributes(owner string) ([]Attribute, error) {
	list, err := c.attrList(owner)
	if err != nil {
		return nil, err
	}
	return list.clone(), nil
}

// GetAttribute returns one attribute of owner.
func (c *Container) GetAttribute(owner, name string) (AttributeValue, error) {
	list, err := c.attrList(owner)
	if err != nil {
		return AttributeValue{}, err
	}
	v, ok := list.get(name)
	if !ok {
		return AttributeValue{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return v, nil
}

func (c *Container) attrList(owner string) (*attrList, error) {
	if owner == Global {
		return &c.attrs, nil
	}
	v, ok := c.varIndex[owner]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, owner)
	}
	return &v.attrs, nil
}

func (c *Container) requireDefine() error {
	switch c.mode {
	case ModeDefine:
		return nil
	case ModeReadOnly:
		return ErrReadOnly
	default:
		return ErrNotInDefineMode
	}
}

func (c *Container) requireData() error {
	switch c.mode {
	case ModeData:
		return nil
	case ModeReadOnly:
		return ErrReadOnly
	default:
		return ErrInDefineMode
	}
}

// ValidName reports whether name is acceptable for a dimension, variable
// or attribute: non-empty UTF-8 without '/', control characters or
// surrounding whitespace.
func ValidName(name string) bool {
	if name == "" || !utf8.ValidString(name) || strings.ContainsRune(name, '/') {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// DefineDimension adds a dimension. Unlimited dimensions start with the
// given current length; fixed dimensions must be longer than zero.
func (c *Container) DefineDimension(name string, length uint64, unlimited bool) error {
	if err := c.requireDefine(); err != nil {
		return err
	}
	if !ValidName(name) {
		return fmt.Errorf("%w: dimension %q", ErrInvalidName, name)
	}
	if _, ok := c.dimIndex[name]; ok {
		return fmt.Errorf("%w: dimension %q", ErrNameInUse, name)
	}
	if unlimited {
		if u, ok := c.UnlimitedDimension(); ok {
			return fmt.Errorf("%w: %q", ErrUnlimitedInUse, u.Name)
		}
	} else if length == 0 {
		return fmt.Errorf("%w: dimension %q", ErrBadLength, name)
	}
	d := &Dimension{Name: name, Len: length, Unlimited: unlimited}
	c.dims = append(c.dims, d)
	c.dimIndex[name] = d
	return nil
}

// DefineVariable adds a variable whose dimensions are resolved by name
// against this container. The payload starts out as fill values.
func (c *Container) DefineVariable(name string, t Type, dims []string) (*Variable, error) {
	if err := c.requireDefine(); err != nil {
		return nil, err
	}
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: variable %q", ErrInvalidName, name)
	}
	if _, ok := c.varIndex[name]; ok {
		return nil, fmt.Errorf("%w: variable %q", ErrNameInUse, name)
	}
	if !t.AllowedIn(c.format) {
		return nil, fmt.Errorf("%w: %v in %v", ErrBadType, t, c.format)
	}
	resolved := make([]*Dimension, len(dims))
	for i, dn := range dims {
		d, ok := c.dimIndex[dn]
		if !ok {
			return nil, fmt.Errorf("%w: %q referenced by %q", ErrUnknownDimension, dn, name)
		}
		if d.Unlimited && i != 0 {
			return nil, fmt.Errorf("%w: %q in %q", ErrRecordDimNotFirst, dn, name)
		}
		resolved[i] = d
	}
	v := &Variable{name: name, typ: t, dims: resolved}
	v.data = v.fillBytes(v.Len())
	c.vars = append(c.vars, v)
	c.varIndex[name] = v
	return v, nil
}

// DeleteVariable removes a variable defined in this define phase.
func (c *Container) DeleteVariable(name string) error {
	if err := c.requireDefine(); err != nil {
		return err
	}
	if _, ok := c.varIndex[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	delete(c.varIndex, name)
	c.vars = slices.DeleteFunc(c.vars, func(v *Variable) bool { return v.name == name })
	return nil
}

// PutAttribute creates or overwrites an attribute of owner (a variable name
// or Global). An overwritten attribute keeps its position.
func (c *Container) PutAttribute(owner, name string, v AttributeValue) error {
	if err := c.requireDefine(); err != nil {
		return err
	}
	if !ValidName(name) {
		return fmt.Errorf("%w: attribute %q", ErrInvalidName, name)
	}
	if !v.typ.AllowedIn(c.format) {
		return fmt.Errorf("%w: attribute %q of type %v in %v", ErrBadType, name, v.typ, c.format)
	}
	list, err := c.attrList(owner)
	if err != nil {
		return err
	}
	list.put(name, v)
	if owner != Global && name == FillValueAttr {
		// The payload of a variable still in define mode is pure fill.
		vr := c.varIndex[owner]
		vr.data = vr.fillBytes(vr.Len())
	}
	return nil
}

// SetChunking sets the storage layout of a variable.
func (c *Container) SetChunking(varName string, ch Chunking) error {
	v, err := c.layoutTarget(varName)
	if err != nil {
		return err
	}
	if err := validateChunking(v, ch); err != nil {
		return err
	}
	v.chunking = ch.clone()
	return nil
}

// SetCompression sets the filter pipeline of a variable.
func (c *Container) SetCompression(varName string, cmp Compression) error {
	v, err := c.layoutTarget(varName)
	if err != nil {
		return err
	}
	if err := validateCompression(v, cmp); err != nil {
		return err
	}
	v.compression = cmp.clone()
	return nil
}

func (c *Container) layoutTarget(varName string) (*Variable, error) {
	if err := c.requireDefine(); err != nil {
		return nil, err
	}
	v, ok := c.varIndex[varName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, varName)
	}
	if !c.format.Enhanced() {
		return nil, fmt.Errorf("%w: %v", ErrNotEnhanced, c.format)
	}
	return v, nil
}

// EndDef leaves define mode. No definitions are accepted afterwards.
func (c *Container) EndDef() error {
	if err := c.requireDefine(); err != nil {
		return err
	}
	c.mode = ModeData
	return nil
}

// Seal makes the container read-only.
func (c *Container) Seal() {
	c.mode = ModeReadOnly
}

// GrowUnlimited raises the current length of the unlimited dimension to n
// records, extending every record variable with fill records. Shrinking is
// not supported and lengths at or below the current one are a no-op.
func (c *Container) GrowUnlimited(n uint64) error {
	if err := c.requireData(); err != nil {
		return err
	}
	var u *Dimension
	for _, d := range c.dims {
		if d.Unlimited {
			u = d
		}
	}
	if u == nil {
		return fmt.Errorf("%w: no unlimited dimension", ErrUnknownDimension)
	}
	if n <= u.Len {
		return nil
	}
	extra := n - u.Len
	u.Len = n
	for _, v := range c.vars {
		if v.IsRecord() && v.dims[0] == u {
			v.data = append(v.data, v.fillBytes(extra*v.RecordSize())...)
		}
	}
	return nil
}

// PutData writes the whole payload of a variable. A record variable accepts
// any whole number of records: more records than the unlimited dimension
// holds grow it, fewer are padded with fill records.
func (c *Container) PutData(varName string, data []byte) error {
	if err := c.requireData(); err != nil {
		return err
	}
	v, ok := c.varIndex[varName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, varName)
	}
	if !v.IsRecord() {
		if uint64(len(data)) != v.Len() {
			return fmt.Errorf("%w: %q wants %d bytes, got %d", ErrBadDataSize, v.name, v.Len(), len(data))
		}
		v.data = slices.Clone(data)
		return nil
	}
	recSize := v.RecordSize()
	if recSize == 0 || uint64(len(data))%recSize != 0 {
		return fmt.Errorf("%w: %q wants a multiple of %d bytes, got %d", ErrBadDataSize, v.name, recSize, len(data))
	}
	if err := c.GrowUnlimited(uint64(len(data)) / recSize); err != nil {
		return err
	}
	buf := make([]byte, 0, v.Len())
	buf = append(buf, data...)
	buf = append(buf, v.fillBytes(v.Len()-uint64(len(data)))...)
	v.data = buf
	return nil
}
