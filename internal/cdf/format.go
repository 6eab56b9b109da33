package cdf

import (
	"errors"
	"fmt"

	"github.com/dreamware/ncmerge/internal/container"
)

var (
	// ErrNotCDF is returned when the input does not start with a classic
	// format magic number.
	ErrNotCDF = errors.New("not a classic-format container")
	// ErrUnsupportedVersion is returned for a version byte or container
	// format this codec does not handle.
	ErrUnsupportedVersion = errors.New("unsupported classic-format version")
	// ErrTruncated is returned when the input ends before the header or a
	// variable's data does.
	ErrTruncated = errors.New("truncated container")
	// ErrMalformed is returned for structurally invalid headers.
	ErrMalformed = errors.New("malformed container header")
	// ErrTooLarge is returned when a container exceeds the limits of its
	// format version.
	ErrTooLarge = errors.New("container too large for format")
)

// Version bytes following the "CDF" magic.
const (
	Version1 byte = 1 // classic
	Version2 byte = 2 // 64-bit offset
	Version5 byte = 5 // cdf5
)

// Header list tags.
const (
	tagAbsent    uint32 = 0x00
	tagDimension uint32 = 0x0A
	tagVariable  uint32 = 0x0B
	tagAttribute uint32 = 0x0C
)

// Magic is the leading three bytes of every classic-format file.
var Magic = [3]byte{'C', 'D', 'F'}

// hdf5Magic is the signature of the HDF5-based enhanced formats.
var hdf5Magic = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// alignment of header fields and variable payloads.
const alignment = 4

// layout carries the field widths of one format version.
type layout struct {
	version    byte
	nonNegSize int // nelems, dimension lengths, numrecs, vsize, dimids
	offsetSize int // variable begin offsets
}

func layoutFor(version byte) (layout, error) {
	switch version {
	case Version1:
		return layout{version: Version1, nonNegSize: 4, offsetSize: 4}, nil
	case Version2:
		return layout{version: Version2, nonNegSize: 4, offsetSize: 8}, nil
	case Version5:
		return layout{version: Version5, nonNegSize: 8, offsetSize: 8}, nil
	default:
		return layout{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// maxNonNeg is the largest value a NON_NEG field may hold.
func (l layout) maxNonNeg() uint64 {
	if l.nonNegSize == 4 {
		return 1<<31 - 1
	}
	return 1<<63 - 1
}

// maxOffset is the largest variable begin offset the version can address.
func (l layout) maxOffset() uint64 {
	if l.offsetSize == 4 {
		return 1<<31 - 1
	}
	return 1<<63 - 1
}

// streaming is the numrecs value written by streaming producers that did
// not know the record count up front.
func (l layout) streaming() uint64 {
	if l.nonNegSize == 4 {
		return 0xFFFFFFFF
	}
	return 0xFFFFFFFFFFFFFFFF
}

// VersionFor maps a container format to its version byte.
func VersionFor(f container.Format) (byte, error) {
	switch f {
	case container.FormatClassic:
		return Version1, nil
	case container.FormatOffset64:
		return Version2, nil
	case container.FormatCDF5:
		return Version5, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedVersion, f)
	}
}

// FormatFor maps a version byte to its container format.
func FormatFor(version byte) (container.Format, error) {
	switch version {
	case Version1:
		return container.FormatClassic, nil
	case Version2:
		return container.FormatOffset64, nil
	case Version5:
		return container.FormatCDF5, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// IsHDF5 reports whether data starts with the HDF5 signature used by the
// enhanced formats.
func IsHDF5(data []byte) bool {
	return len(data) >= len(hdf5Magic) && string(data[:len(hdf5Magic)]) == string(hdf5Magic)
}

// Sniff returns the format of data from its magic number without decoding
// the rest of the header.
func Sniff(data []byte) (container.Format, error) {
	if IsHDF5(data) {
		return container.FormatEnhanced, nil
	}
	if len(data) < 4 || data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] {
		return 0, ErrNotCDF
	}
	return FormatFor(data[3])
}

// pad returns n rounded up to the next multiple of the alignment.
func pad(n uint64) uint64 {
	if rem := n % alignment; rem != 0 {
		return n + alignment - rem
	}
	return n
}
