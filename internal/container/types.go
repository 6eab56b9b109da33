package container

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format identifies the storage format family of a container.
type Format int

const (
	// FormatClassic is the original CDF-1 format with 32-bit offsets.
	FormatClassic Format = iota + 1
	// FormatOffset64 is CDF-2, identical to classic but with 64-bit offsets.
	FormatOffset64
	// FormatCDF5 is CDF-5: 64-bit sizes and the unsigned/64-bit integer types.
	FormatCDF5
	// FormatEnhanced is the HDF5-based format with the full type system.
	FormatEnhanced
	// FormatEnhancedClassic is the HDF5-based format restricted to the
	// classic data model.
	FormatEnhancedClassic
)

var formatNames = map[Format]string{
	FormatClassic:         "classic",
	FormatOffset64:        "64-bit-offset",
	FormatCDF5:            "cdf5",
	FormatEnhanced:        "enhanced",
	FormatEnhancedClassic: "enhanced-classic",
}

// String returns the canonical name of the format.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Valid reports whether f is one of the known formats.
func (f Format) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// Enhanced reports whether the format is HDF5-based and therefore
// supports chunking and compression.
func (f Format) Enhanced() bool {
	return f == FormatEnhanced || f == FormatEnhancedClassic
}

// ExtendedTypes reports whether the format accepts the unsigned and 64-bit
// integer types.
func (f Format) ExtendedTypes() bool {
	return f == FormatCDF5 || f == FormatEnhanced
}

// ParseFormat parses a canonical format name as returned by Format.String.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown container format %q", name)
}

// Type is the element type of a variable or attribute. The numeric values
// match the external type tags of the classic file format.
type Type int

const (
	Byte   Type = 1
	Char   Type = 2
	Short  Type = 3
	Int    Type = 4
	Float  Type = 5
	Double Type = 6
	UByte  Type = 7
	UShort Type = 8
	UInt   Type = 9
	Int64  Type = 10
	UInt64 Type = 11
)

var typeNames = map[Type]string{
	Byte:   "byte",
	Char:   "char",
	Short:  "short",
	Int:    "int",
	Float:  "float",
	Double: "double",
	UByte:  "ubyte",
	UShort: "ushort",
	UInt:   "uint",
	Int64:  "int64",
	UInt64: "uint64",
}

// String returns the CDL name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Extended reports whether t is only available in cdf5 and enhanced formats.
func (t Type) Extended() bool {
	return t >= UByte && t <= UInt64
}

// Size returns the size of one element in bytes, or 0 for an unknown type.
func (t Type) Size() int {
	switch t {
	case Byte, Char, UByte:
		return 1
	case Short, UShort:
		return 2
	case Int, Float, UInt:
		return 4
	case Double, Int64, UInt64:
		return 8
	default:
		return 0
	}
}

// ParseType parses a CDL type name.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown type %q", name)
}

// AllowedIn reports whether the type may be used in a container of format f.
func (t Type) AllowedIn(f Format) bool {
	if !t.Valid() {
		return false
	}
	return !t.Extended() || f.ExtendedTypes()
}

// DefaultFill returns the default fill value of the type as one big-endian
// encoded element.
func (t Type) DefaultFill() []byte {
	buf := make([]byte, t.Size())
	order := binary.BigEndian
	switch t {
	case Byte:
		buf[0] = 0x81 // -127
	case Char:
		buf[0] = 0
	case Short:
		order.PutUint16(buf, 0x8001) // -32767
	case Int:
		order.PutUint32(buf, 0x80000001) // -2147483647
	case Float:
		order.PutUint32(buf, math.Float32bits(9.9692099683868690e+36))
	case Double:
		order.PutUint64(buf, math.Float64bits(9.9692099683868690e+36))
	case UByte:
		buf[0] = 255
	case UShort:
		order.PutUint16(buf, 65535)
	case UInt:
		order.PutUint32(buf, 4294967295)
	case Int64:
		order.PutUint64(buf, 0x8000000000000002) // -9223372036854775806
	case UInt64:
		order.PutUint64(buf, 18446744073709551614)
	}
	return buf
}
