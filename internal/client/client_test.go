package client

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ncmerge/internal/codec"
	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
	"github.com/dreamware/ncmerge/internal/server"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := partstore.New(4)
	ts := httptest.NewServer(server.New(store, merge.New(nil), server.Options{}).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// station builds a classic container holding one variable named v over
// dimension dim with the given title.
func station(t *testing.T, dim, v, title string, vals ...float32) []byte {
	t.Helper()
	c, err := container.New(container.FormatClassic)
	require.NoError(t, err)
	require.NoError(t, c.PutAttribute(container.Global, "title", container.Text(title)))
	require.NoError(t, c.DefineDimension(dim, uint64(len(vals)), false))
	_, err = c.DefineVariable(v, container.Float, []string{dim})
	require.NoError(t, err)
	require.NoError(t, c.EndDef())
	require.NoError(t, c.PutData(v, container.EncodeFloat32s(vals...)))

	buf, err := codec.NewCDF().Finalize(c)
	require.NoError(t, err)
	defer buf.Release()
	return append([]byte(nil), buf.Bytes()...)
}

func TestNewValidation(t *testing.T) {
	_, err := New("localhost:8080")
	assert.Error(t, err)
	_, err = New("http://localhost:8080", WithEncoding("br"))
	assert.Error(t, err)
	c, err := New("http://localhost:8080/", WithEncoding(EncodingZstd))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/read?name=x", c.endpoint("/read", map[string][]string{"name": {"x"}}))
}

func TestEndToEnd(t *testing.T) {
	for _, enc := range []string{EncodingIdentity, EncodingGzip, EncodingZstd} {
		t.Run("encoding="+enc, func(t *testing.T) {
			ts := newServer(t)
			ctx := t.Context()
			c, err := New(ts.URL, WithEncoding(enc))
			require.NoError(t, err)
			require.NoError(t, c.Health(ctx))

			a := station(t, "x", "temp", "part a", 1, 2, 3)
			b := station(t, "y", "rain", "part b", 7, 8)

			up, err := c.PutPart(ctx, "obs", partstore.SlotA, a)
			require.NoError(t, err)
			assert.Equal(t, len(a), up.Bytes)
			assert.Equal(t, "a", up.Part)

			_, err = c.Read(ctx, "obs", "")
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			_, err = c.PutPart(ctx, "obs", partstore.SlotB, b)
			require.NoError(t, err)

			res, err := c.Read(ctx, "obs", "")
			require.NoError(t, err)
			assert.Equal(t, "classic", res.Format)
			assert.Empty(t, res.Skipped)
			require.NotEmpty(t, res.ETag)

			merged, err := codec.NewCDF().Open(res.Data)
			require.NoError(t, err)
			title, err := merged.GetAttribute(container.Global, "title")
			require.NoError(t, err)
			assert.Equal(t, "part b", title.Values())
			rain, ok := merged.Variable("rain")
			require.True(t, ok)
			assert.Equal(t, container.EncodeFloat32s(7, 8), rain.Data())
			temp, ok := merged.Variable("temp")
			require.True(t, ok)
			assert.Equal(t, container.EncodeFloat32s(1, 2, 3), temp.Data())

			again, err := c.Read(ctx, "obs", res.ETag)
			require.NoError(t, err)
			assert.True(t, again.NotModified)
			assert.Nil(t, again.Data)

			desc, err := c.Describe(ctx, "obs", "")
			require.NoError(t, err)
			assert.Equal(t, "merged", desc.Part)
			assert.Len(t, desc.Description.Variables, 2)
			require.NotNil(t, desc.Report)
			assert.Nil(t, desc.Report.Mismatch)

			list, err := c.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.True(t, list[0].HasA && list[0].HasB)

			info, err := c.Info(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, info.Store.Datasets)
			assert.Equal(t, uint64(2), info.Store.Ops.Puts)

			require.NoError(t, c.Delete(ctx, "obs"))
			err = c.Delete(ctx, "obs")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStatusErrorCarriesMessage(t *testing.T) {
	ts := newServer(t)
	c, err := New(ts.URL)
	require.NoError(t, err)

	_, err = c.PutPart(t.Context(), "", partstore.SlotA, []byte("x"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.Code)
	assert.NotEmpty(t, se.Message)
	assert.NotErrorIs(t, err, ErrNotFound)
}
