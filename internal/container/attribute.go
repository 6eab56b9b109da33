package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// AttributeValue is a homogeneous array of one type, held in the
// big-endian external representation of the classic format.
// The zero value is an empty value of no type.
type AttributeValue struct {
	typ  Type
	data []byte
}

// NewAttributeValue builds a value from raw big-endian bytes. The byte
// length must be a whole number of elements of t.
func NewAttributeValue(t Type, raw []byte) (AttributeValue, error) {
	if !t.Valid() {
		return AttributeValue{}, fmt.Errorf("%w: %v", ErrBadType, t)
	}
	if len(raw)%t.Size() != 0 {
		return AttributeValue{}, fmt.Errorf("%w: %d bytes is not a multiple of %s", ErrBadDataSize, len(raw), t)
	}
	return AttributeValue{typ: t, data: slices.Clone(raw)}, nil
}

// Type returns the element type.
func (v AttributeValue) Type() Type { return v.typ }

// Len returns the element count.
func (v AttributeValue) Len() int {
	if size := v.typ.Size(); size > 0 {
		return len(v.data) / size
	}
	return 0
}

// Bytes returns the big-endian encoded elements. The slice must not be
// modified.
func (v AttributeValue) Bytes() []byte { return v.data }

// Equal reports whether two values have the same type and elements.
func (v AttributeValue) Equal(o AttributeValue) bool {
	return v.typ == o.typ && bytes.Equal(v.data, o.data)
}

// String renders the value the way CDL would.
func (v AttributeValue) String() string {
	if v.typ == Char {
		return fmt.Sprintf("%q", string(v.data))
	}
	return fmt.Sprint(v.Values())
}

// Values decodes the elements into a Go slice of the matching type
// ([]int8, []int16, ...). Char values decode to a string.
func (v AttributeValue) Values() any {
	order := binary.BigEndian
	n := v.Len()
	switch v.typ {
	case Char:
		return string(v.data)
	case Byte:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(v.data[i])
		}
		return out
	case UByte:
		return slices.Clone(v.data)
	case Short:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(order.Uint16(v.data[2*i:]))
		}
		return out
	case UShort:
		out := make([]uint16, n)
		for i := range out {
			out[i] = order.Uint16(v.data[2*i:])
		}
		return out
	case Int:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(order.Uint32(v.data[4*i:]))
		}
		return out
	case UInt:
		out := make([]uint32, n)
		for i := range out {
			out[i] = order.Uint32(v.data[4*i:])
		}
		return out
	case Float:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(v.data[4*i:]))
		}
		return out
	case Double:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(v.data[8*i:]))
		}
		return out
	case Int64:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(order.Uint64(v.data[8*i:]))
		}
		return out
	case UInt64:
		out := make([]uint64, n)
		for i := range out {
			out[i] = order.Uint64(v.data[8*i:])
		}
		return out
	default:
		return nil
	}
}

// Text returns a Char value.
func Text(s string) AttributeValue {
	return AttributeValue{typ: Char, data: []byte(s)}
}

// Int8s returns a Byte value.
func Int8s(vals ...int8) AttributeValue {
	data := make([]byte, len(vals))
	for i, x := range vals {
		data[i] = byte(x)
	}
	return AttributeValue{typ: Byte, data: data}
}

// Uint8s returns a UByte value.
func Uint8s(vals ...uint8) AttributeValue {
	return AttributeValue{typ: UByte, data: slices.Clone(vals)}
}

// Int16s returns a Short value.
func Int16s(vals ...int16) AttributeValue {
	data := make([]byte, 2*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint16(data[2*i:], uint16(x))
	}
	return AttributeValue{typ: Short, data: data}
}

// Uint16s returns a UShort value.
func Uint16s(vals ...uint16) AttributeValue {
	data := make([]byte, 2*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint16(data[2*i:], x)
	}
	return AttributeValue{typ: UShort, data: data}
}

// Int32s returns an Int value.
func Int32s(vals ...int32) AttributeValue {
	data := make([]byte, 4*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint32(data[4*i:], uint32(x))
	}
	return AttributeValue{typ: Int, data: data}
}

// Uint32s returns a UInt value.
func Uint32s(vals ...uint32) AttributeValue {
	data := make([]byte, 4*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint32(data[4*i:], x)
	}
	return AttributeValue{typ: UInt, data: data}
}

// Int64s returns an Int64 value.
func Int64s(vals ...int64) AttributeValue {
	data := make([]byte, 8*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint64(data[8*i:], uint64(x))
	}
	return AttributeValue{typ: Int64, data: data}
}

// Uint64s returns a UInt64 value.
func Uint64s(vals ...uint64) AttributeValue {
	data := make([]byte, 8*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint64(data[8*i:], x)
	}
	return AttributeValue{typ: UInt64, data: data}
}

// Float32s returns a Float value.
func Float32s(vals ...float32) AttributeValue {
	return AttributeValue{typ: Float, data: EncodeFloat32s(vals...)}
}

// Float64s returns a Double value.
func Float64s(vals ...float64) AttributeValue {
	return AttributeValue{typ: Double, data: EncodeFloat64s(vals...)}
}

// EncodeFloat32s encodes values in the external representation, as used for
// Float variable payloads.
func EncodeFloat32s(vals ...float32) []byte {
	data := make([]byte, 4*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint32(data[4*i:], math.Float32bits(x))
	}
	return data
}

// EncodeFloat64s encodes values in the external representation, as used for
// Double variable payloads.
func EncodeFloat64s(vals ...float64) []byte {
	data := make([]byte, 8*len(vals))
	for i, x := range vals {
		binary.BigEndian.PutUint64(data[8*i:], math.Float64bits(x))
	}
	return data
}

// Attribute is a named value attached to a variable or to the container.
type Attribute struct {
	Name  string
	Value AttributeValue
}

// attrList is an ordered name to value mapping. Overwriting keeps the
// original position.
type attrList []Attribute

func (l attrList) index(name string) int {
	return slices.IndexFunc(l, func(a Attribute) bool { return a.Name == name })
}

func (l attrList) get(name string) (AttributeValue, bool) {
	if i := l.index(name); i >= 0 {
		return l[i].Value, true
	}
	return AttributeValue{}, false
}

func (l *attrList) put(name string, v AttributeValue) {
	v = AttributeValue{typ: v.typ, data: slices.Clone(v.data)}
	if i := l.index(name); i >= 0 {
		(*l)[i].Value = v
		return
	}
	*l = append(*l, Attribute{Name: name, Value: v})
}

func (l attrList) clone() []Attribute {
	return slices.Clone([]Attribute(l))
}
