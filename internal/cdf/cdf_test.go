package cdf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ncmerge/internal/container"
)

// sample builds a container with fixed and record variables of mixed sizes
// so that both payload padding and record interleaving are exercised.
func sample(t *testing.T, f container.Format) *container.Container {
	t.Helper()
	c, err := container.New(f)
	require.NoError(t, err)
	require.NoError(t, c.DefineDimension("time", 0, true))
	require.NoError(t, c.DefineDimension("lat", 2, false))
	require.NoError(t, c.DefineDimension("lon", 3, false))
	require.NoError(t, c.PutAttribute(container.Global, "title", container.Text("sample")))
	require.NoError(t, c.PutAttribute(container.Global, "version", container.Int32s(3)))

	_, err = c.DefineVariable("lat", container.Double, []string{"lat"})
	require.NoError(t, err)
	_, err = c.DefineVariable("flag", container.Byte, []string{"lon"})
	require.NoError(t, err)
	_, err = c.DefineVariable("temp", container.Float, []string{"time", "lat", "lon"})
	require.NoError(t, err)
	require.NoError(t, c.PutAttribute("temp", "units", container.Text("K")))
	require.NoError(t, c.PutAttribute("temp", container.FillValueAttr, container.Float32s(-999)))
	_, err = c.DefineVariable("count", container.Short, []string{"time"})
	require.NoError(t, err)
	require.NoError(t, c.EndDef())

	require.NoError(t, c.PutData("lat", container.EncodeFloat64s(10, 20)))
	require.NoError(t, c.PutData("flag", []byte{1, 2, 3}))
	require.NoError(t, c.PutData("temp", container.EncodeFloat32s(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12)))
	require.NoError(t, c.PutData("count", []byte{0, 1, 0, 2}))
	return c
}

func assertSameContainer(t *testing.T, want, got *container.Container) {
	t.Helper()
	assert.Equal(t, container.Describe(want), container.Describe(got))
	for _, wv := range want.Variables() {
		gv, ok := got.Variable(wv.Name())
		require.True(t, ok, "variable %q", wv.Name())
		assert.Equal(t, wv.Data(), gv.Data(), "payload of %q", wv.Name())
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		format  container.Format
		version byte
	}{
		{container.FormatClassic, Version1},
		{container.FormatOffset64, Version2},
		{container.FormatCDF5, Version5},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			c := sample(t, tt.format)
			out, err := Encode(c)
			require.NoError(t, err)
			assert.Equal(t, []byte{'C', 'D', 'F', tt.version}, out[:4])

			got, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, container.ModeReadOnly, got.Mode())
			assertSameContainer(t, c, got)

			u, ok := got.UnlimitedDimension()
			require.True(t, ok)
			assert.Equal(t, uint64(2), u.Len)

			again, err := Encode(got)
			require.NoError(t, err)
			assert.Equal(t, out, again, "re-encoding is stable")
		})
	}
}

func TestExtendedTypesRoundTrip(t *testing.T) {
	c, err := container.New(container.FormatCDF5)
	require.NoError(t, err)
	require.NoError(t, c.DefineDimension("n", 2, false))
	_, err = c.DefineVariable("big", container.UInt64, []string{"n"})
	require.NoError(t, err)
	require.NoError(t, c.PutAttribute("big", "range", container.Uint16s(1, 65535)))
	require.NoError(t, c.EndDef())
	require.NoError(t, c.PutData("big", container.Uint64s(7, 1<<40).Bytes()))

	out, err := Encode(c)
	require.NoError(t, err)
	got, err := Decode(out)
	require.NoError(t, err)
	assertSameContainer(t, c, got)
}

// handBuilt returns a classic container written field by field: one
// dimension x of length 2 and a short variable v over it holding 1, 2.
func handBuilt() []byte {
	var b bytes.Buffer
	put := func(v uint32) { _ = binary.Write(&b, binary.BigEndian, v) }
	b.WriteString("CDF\x01")
	put(0) // numrecs
	put(uint32(tagDimension))
	put(1)
	put(1)
	b.WriteString("x\x00\x00\x00")
	put(2)
	put(uint32(tagAbsent)) // global attributes
	put(0)
	put(uint32(tagVariable))
	put(1)
	put(1)
	b.WriteString("v\x00\x00\x00")
	put(1) // rank
	put(0) // dimid
	put(uint32(tagAbsent))
	put(0)
	put(uint32(container.Short))
	put(4) // vsize
	put(uint32(b.Len() + 4))
	b.Write([]byte{0, 1, 0, 2})
	return b.Bytes()
}

// byteVar is a rank-1 byte variable over dims[dim] whose payload starts off
// bytes past the end of the header.
type byteVar struct {
	name string
	dim  int
	off  int
}

// byteFile hand-assembles a classic file of byte variables with the given
// begin offsets followed by dataLen zero bytes. A dimension of length 0 is
// the record dimension.
func byteFile(numrecs uint32, dims []container.Dimension, vars []byteVar, dataLen int) []byte {
	var b bytes.Buffer
	put := func(v uint32) { _ = binary.Write(&b, binary.BigEndian, v) }
	name := func(s string) {
		put(uint32(len(s)))
		b.WriteString(s)
		b.Write(make([]byte, (4-len(s)%4)%4))
	}
	b.WriteString("CDF\x01")
	put(numrecs)
	put(uint32(tagDimension))
	put(uint32(len(dims)))
	for _, d := range dims {
		name(d.Name)
		put(uint32(d.Len))
	}
	put(uint32(tagAbsent))
	put(0)
	put(uint32(tagVariable))
	put(uint32(len(vars)))
	begins := make([]int, len(vars))
	for i, v := range vars {
		name(v.name)
		put(1)
		put(uint32(v.dim))
		put(uint32(tagAbsent))
		put(0)
		put(uint32(container.Byte))
		put(uint32(max(dims[v.dim].Len, 1)))
		begins[i] = b.Len()
		put(0)
	}
	headerEnd := b.Len()
	b.Write(make([]byte, dataLen))
	out := b.Bytes()
	for i, v := range vars {
		binary.BigEndian.PutUint32(out[begins[i]:], uint32(headerEnd+v.off))
	}
	return out
}

func TestDecodeHandBuilt(t *testing.T) {
	raw := handBuilt()
	c, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, container.FormatClassic, c.Format())
	d, ok := c.Dimension("x")
	require.True(t, ok)
	assert.Equal(t, uint64(2), d.Len)
	v, ok := c.Variable("v")
	require.True(t, ok)
	assert.Equal(t, container.Short, v.Type())
	assert.Equal(t, []byte{0, 1, 0, 2}, v.Data())

	out, err := Encode(c)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestSingleRecordVariableIsUnpadded(t *testing.T) {
	c, err := container.New(container.FormatClassic)
	require.NoError(t, err)
	require.NoError(t, c.DefineDimension("time", 0, true))
	_, err = c.DefineVariable("x", container.Short, []string{"time"})
	require.NoError(t, err)
	require.NoError(t, c.EndDef())
	require.NoError(t, c.PutData("x", []byte{0, 1, 0, 2, 0, 3}))

	out, err := Encode(c)
	require.NoError(t, err)
	// The header is 4-byte aligned; three unpadded shorts leave 2 over.
	assert.Equal(t, 2, len(out)%4)

	got, err := Decode(out)
	require.NoError(t, err)
	assertSameContainer(t, c, got)
}

func TestDecodeStreamingRecordCount(t *testing.T) {
	for _, f := range []container.Format{container.FormatClassic, container.FormatCDF5} {
		t.Run(f.String(), func(t *testing.T) {
			c := sample(t, f)
			out, err := Encode(c)
			require.NoError(t, err)

			l, err := layoutFor(out[3])
			require.NoError(t, err)
			for i := 0; i < l.nonNegSize; i++ {
				out[4+i] = 0xFF
			}

			got, err := Decode(out)
			require.NoError(t, err)
			assertSameContainer(t, c, got)
		})
	}
}

func TestEmptyRecordDimension(t *testing.T) {
	c, err := container.New(container.FormatOffset64)
	require.NoError(t, err)
	require.NoError(t, c.DefineDimension("time", 0, true))
	_, err = c.DefineVariable("x", container.Int, []string{"time"})
	require.NoError(t, err)
	require.NoError(t, c.EndDef())

	out, err := Encode(c)
	require.NoError(t, err)
	got, err := Decode(out)
	require.NoError(t, err)
	v, ok := got.Variable("x")
	require.True(t, ok)
	assert.Empty(t, v.Data())
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(sample(t, container.FormatClassic))
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   func() []byte
		wantErr error
	}{
		{
			name:    "empty input",
			input:   func() []byte { return nil },
			wantErr: ErrNotCDF,
		},
		{
			name:    "wrong magic",
			input:   func() []byte { return []byte("GIF89a....") },
			wantErr: ErrNotCDF,
		},
		{
			name:    "hdf5 signature",
			input:   func() []byte { return append(cloneBytes(hdf5Magic), make([]byte, 16)...) },
			wantErr: ErrNotCDF,
		},
		{
			name:    "unknown version",
			input:   func() []byte { return []byte{'C', 'D', 'F', 3, 0, 0, 0, 0} },
			wantErr: ErrUnsupportedVersion,
		},
		{
			name:    "header cut short",
			input:   func() []byte { return valid[:20] },
			wantErr: ErrTruncated,
		},
		{
			name:    "data cut short",
			input:   func() []byte { return valid[:len(valid)-3] },
			wantErr: ErrTruncated,
		},
		{
			name: "bad list tag",
			input: func() []byte {
				b := cloneBytes(valid)
				binary.BigEndian.PutUint32(b[8:], 0x0D)
				return b
			},
			wantErr: ErrMalformed,
		},
		{
			name: "absurd dimension count",
			input: func() []byte {
				b := cloneBytes(valid[:16])
				binary.BigEndian.PutUint32(b[12:], 0x7FFFFFFF)
				return b
			},
			wantErr: ErrTruncated,
		},
		{
			name: "absurd record count",
			input: func() []byte {
				b := cloneBytes(valid)
				binary.BigEndian.PutUint32(b[4:], 0x7FFFFFF0)
				return b
			},
			wantErr: ErrTruncated,
		},
		{
			name: "fixed variables share a begin",
			input: func() []byte {
				return byteFile(0, []container.Dimension{{Name: "x", Len: 4}},
					[]byteVar{{"a", 0, 0}, {"b", 0, 0}}, 8)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "fixed variables overlap",
			input: func() []byte {
				return byteFile(0, []container.Dimension{{Name: "x", Len: 4}},
					[]byteVar{{"a", 0, 4}, {"b", 0, 2}}, 8)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "payload inside header",
			input: func() []byte {
				return byteFile(0, []container.Dimension{{Name: "x", Len: 4}},
					[]byteVar{{"a", 0, -4}, {"b", 0, 4}}, 8)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "record section before last fixed variable",
			input: func() []byte {
				return byteFile(2, []container.Dimension{{Name: "x", Len: 4}, {Name: "t", Len: 0}},
					[]byteVar{{"a", 0, 0}, {"r", 1, 2}}, 8)
			},
			wantErr: ErrMalformed,
		},
		{
			name: "record variables share a begin",
			input: func() []byte {
				return byteFile(1, []container.Dimension{{Name: "t", Len: 0}},
					[]byteVar{{"r1", 0, 0}, {"r2", 0, 0}}, 8)
			},
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeExtentsOutOfOrder(t *testing.T) {
	raw := byteFile(2, []container.Dimension{{Name: "x", Len: 4}, {Name: "t", Len: 0}},
		[]byteVar{{"a", 0, 4}, {"b", 0, 0}, {"r", 1, 8}}, 10)
	n := len(raw)
	copy(raw[n-10:], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	c, err := Decode(raw)
	require.NoError(t, err)
	a, _ := c.Variable("a")
	assert.Equal(t, []byte{5, 6, 7, 8}, a.Data())
	b, _ := c.Variable("b")
	assert.Equal(t, []byte{1, 2, 3, 4}, b.Data())
	r, _ := c.Variable("r")
	assert.Equal(t, []byte{9, 10}, r.Data())
}

func cloneBytes(b []byte) []byte {
	return append([]byte(nil), b...)
}

func TestEncodeRejectsEnhanced(t *testing.T) {
	c, err := container.New(container.FormatEnhanced)
	require.NoError(t, err)
	_, err = Encode(c)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    container.Format
		wantErr error
	}{
		{"classic", []byte("CDF\x01"), container.FormatClassic, nil},
		{"offset64", []byte("CDF\x02"), container.FormatOffset64, nil},
		{"cdf5", []byte("CDF\x05"), container.FormatCDF5, nil},
		{"hdf5", hdf5Magic, container.FormatEnhanced, nil},
		{"short", []byte("CD"), 0, ErrNotCDF},
		{"bad version", []byte("CDF\x04"), 0, ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
