package container

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Layout is the storage layout kind of a variable.
type Layout int

const (
	// Contiguous stores the variable as one block.
	Contiguous Layout = iota
	// Chunked stores the variable as fixed-size tiles.
	Chunked
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case Contiguous:
		return "contiguous"
	case Chunked:
		return "chunked"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Layout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Layout) UnmarshalText(text []byte) error {
	switch string(text) {
	case "contiguous":
		*l = Contiguous
	case "chunked":
		*l = Chunked
	default:
		return fmt.Errorf("unknown layout %q", text)
	}
	return nil
}

// Chunking describes the storage tiling of a variable. Shape is parallel to
// the variable's dimensions and is empty for contiguous storage.
type Chunking struct {
	Layout Layout   `json:"layout"`
	Shape  []uint64 `json:"shape,omitempty"`
}

func (c *Chunking) clone() *Chunking {
	if c == nil {
		return nil
	}
	return &Chunking{Layout: c.Layout, Shape: slices.Clone(c.Shape)}
}

// Compression describes the filter pipeline of a variable.
type Compression struct {
	Shuffle bool `json:"shuffle"`
	Deflate bool `json:"deflate"`
	Level   int  `json:"level"`
}

// Enabled reports whether any filter is active.
func (c Compression) Enabled() bool {
	return c.Shuffle || c.Deflate
}

func (c *Compression) clone() *Compression {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// validateChunking checks a chunk layout against a variable's dimensions.
func validateChunking(v *Variable, ch Chunking) error {
	switch ch.Layout {
	case Contiguous:
		if len(ch.Shape) != 0 {
			return fmt.Errorf("%w: contiguous layout takes no chunk shape", ErrBadChunking)
		}
		if v.compression != nil && v.compression.Enabled() {
			return fmt.Errorf("%w: compressed variable %q cannot be contiguous", ErrBadChunking, v.name)
		}
		return nil
	case Chunked:
	default:
		return fmt.Errorf("%w: unknown layout %d", ErrBadChunking, int(ch.Layout))
	}
	if len(v.dims) == 0 {
		return fmt.Errorf("%w: scalar variable %q cannot be chunked", ErrBadChunking, v.name)
	}
	if len(ch.Shape) != len(v.dims) {
		return fmt.Errorf("%w: %d chunk sizes for %d dimensions", ErrBadChunking, len(ch.Shape), len(v.dims))
	}
	for i, size := range ch.Shape {
		d := v.dims[i]
		if size == 0 {
			return fmt.Errorf("%w: zero chunk size along %q", ErrBadChunking, d.Name)
		}
		if !d.Unlimited && size > d.Len {
			return fmt.Errorf("%w: chunk size %d exceeds length %d of %q", ErrBadChunking, size, d.Len, d.Name)
		}
	}
	return nil
}

func validateCompression(v *Variable, c Compression) error {
	if c.Level < 0 || c.Level > 9 {
		return fmt.Errorf("%w: deflate level %d outside 0-9", ErrBadCompression, c.Level)
	}
	if c.Enabled() && v.chunking != nil && v.chunking.Layout == Contiguous {
		return fmt.Errorf("%w: variable %q is contiguous", ErrBadCompression, v.name)
	}
	return nil
}
