package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ncmerge/internal/codec"
	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
	"github.com/dreamware/ncmerge/internal/server"
)

// writePart writes a classic container with one Short variable over a
// record dimension to dir/name and returns its path.
func writePart(t *testing.T, dir, name, varName string, vals ...int16) string {
	t.Helper()
	c, err := container.New(container.FormatClassic)
	require.NoError(t, err)
	require.NoError(t, c.PutAttribute(container.Global, "source", container.Text(name)))
	require.NoError(t, c.DefineDimension("time", 0, true))
	_, err = c.DefineVariable(varName, container.Short, []string{"time"})
	require.NoError(t, err)
	require.NoError(t, c.PutAttribute(varName, "valid_range", container.Int16s(0, 100)))
	require.NoError(t, c.EndDef())
	require.NoError(t, c.GrowUnlimited(uint64(len(vals))))
	var raw []byte
	for _, v := range vals {
		raw = append(raw, byte(uint16(v)>>8), byte(v))
	}
	require.NoError(t, c.PutData(varName, raw))

	buf, err := codec.NewCDF().Finalize(c)
	require.NoError(t, err)
	defer buf.Release()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Error(t, run(t.Context(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: ncmerge")

	stderr.Reset()
	assert.ErrorContains(t, run(t.Context(), []string{"frobnicate"}, &stdout, &stderr), "unknown command")

	require.NoError(t, run(t.Context(), []string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "commands:")
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	a := writePart(t, dir, "a.nc", "pressure", 1, 2, 3)
	b := writePart(t, dir, "b.nc", "humidity", 40, 50)
	out := filepath.Join(dir, "merged.nc")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(t.Context(), []string{"merge", "--report", "-o", out, a, b}, &stdout, &stderr))

	var rep merge.Report
	require.NoError(t, json.Unmarshal(stderr.Bytes(), &rep))
	assert.Equal(t, "classic", rep.Format)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	c, err := codec.NewCDF().Open(data)
	require.NoError(t, err)
	time, ok := c.Dimension("time")
	require.True(t, ok)
	assert.Equal(t, uint64(3), time.Len)
	_, ok = c.Variable("pressure")
	assert.True(t, ok)
	_, ok = c.Variable("humidity")
	assert.True(t, ok)

	assert.ErrorContains(t, run(t.Context(), []string{"merge", a}, &stdout, &stderr), "two input files")
}

func TestMergeCommandStdout(t *testing.T) {
	dir := t.TempDir()
	a := writePart(t, dir, "a.nc", "v", 1)
	garbage := filepath.Join(dir, "junk.nc")
	require.NoError(t, os.WriteFile(garbage, []byte("junk"), 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(t.Context(), []string{"merge", "-o", "-", a, a}, &stdout, &stderr))
	assert.True(t, bytes.HasPrefix(stdout.Bytes(), []byte("CDF\x01")))

	err := run(t.Context(), []string{"merge", "-o", "-", a, garbage}, &stdout, &stderr)
	assert.Equal(t, merge.KindInvalidInput, merge.KindOf(err))
}

func TestDumpCommand(t *testing.T) {
	dir := t.TempDir()
	path := writePart(t, dir, "a.nc", "pressure", 5, 6)

	t.Run("text", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, run(t.Context(), []string{"dump", path}, &stdout, &stderr))
		want := strings.Join([]string{
			"// format: classic",
			"dimensions:",
			"\ttime = UNLIMITED ; // (2 currently)",
			"variables:",
			"\tshort pressure(time) ;",
			"\t\tpressure:valid_range = 0, 100 ;",
			"",
			"// global attributes:",
			"\t\t:source = \"a.nc\" ;",
			"",
		}, "\n")
		assert.Equal(t, want, stdout.String())
	})

	t.Run("json", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, run(t.Context(), []string{"dump", "--format", "json", path}, &stdout, &stderr))
		var desc container.Description
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &desc))
		require.Len(t, desc.Variables, 1)
		assert.Equal(t, []uint64{2}, desc.Variables[0].Shape)
	})

	t.Run("cbor", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, run(t.Context(), []string{"dump", "-f", "cbor", path}, &stdout, &stderr))
		var desc struct {
			Format     string `json:"format"`
			Dimensions []struct {
				Name      string `json:"name"`
				Length    uint64 `json:"length"`
				Unlimited bool   `json:"unlimited"`
			} `json:"dimensions"`
		}
		require.NoError(t, cbor.Unmarshal(stdout.Bytes(), &desc))
		assert.Equal(t, "classic", desc.Format)
		require.Len(t, desc.Dimensions, 1)
		assert.True(t, desc.Dimensions[0].Unlimited)
	})

	t.Run("log level", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, run(t.Context(), []string{"dump", "--log-level", "debug", "-f", "json", path}, &stdout, &stderr))
		assert.Contains(t, stderr.String(), "decoded container")
		assert.Contains(t, stderr.String(), "variables=1")

		stderr.Reset()
		require.NoError(t, run(t.Context(), []string{"dump", "-f", "json", path}, &stdout, &stderr))
		assert.Empty(t, stderr.String())

		assert.Error(t, run(t.Context(), []string{"dump", "--log-level", "loud", path}, &stdout, &stderr))
	})

	t.Run("unknown format", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		assert.Error(t, run(t.Context(), []string{"dump", "-f", "xml", path}, &stdout, &stderr))
	})
}

func TestRemoteCommands(t *testing.T) {
	store := partstore.New(2)
	ts := httptest.NewServer(server.New(store, merge.New(nil), server.Options{}).Handler())
	defer ts.Close()

	dir := t.TempDir()
	a := writePart(t, dir, "a.nc", "pressure", 1, 2)
	b := writePart(t, dir, "b.nc", "pressure", 9, 8, 7)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(t.Context(), []string{"push", "-s", ts.URL, "-n", "run1", a, b}, &stdout, &stderr))
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "run1\ta\t"))
	assert.True(t, strings.HasPrefix(lines[1], "run1\tb\t"))

	stdout.Reset()
	require.NoError(t, run(t.Context(), []string{"ls", "-s", ts.URL}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), "run1\t"))

	out := filepath.Join(dir, "pulled.nc")
	require.NoError(t, run(t.Context(), []string{"pull", "-s", ts.URL, "-n", "run1", "-o", out}, &stdout, &stderr))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	c, err := codec.NewCDF().Open(data)
	require.NoError(t, err)
	v, ok := c.Variable("pressure")
	require.True(t, ok)
	assert.Equal(t, []byte{0, 9, 0, 8, 0, 7}, v.Data())

	stderr.Reset()
	require.NoError(t, run(t.Context(), []string{"rm", "--log-level", "info", "-s", ts.URL, "-n", "run1"}, &stdout, &stderr))
	assert.Empty(t, store.List())
	assert.Contains(t, stderr.String(), "dataset deleted")
	assert.Error(t, run(t.Context(), []string{"rm", "-s", ts.URL, "-n", "run1"}, &stdout, &stderr))
	assert.ErrorContains(t, run(t.Context(), []string{"pull", "-s", ts.URL}, &stdout, &stderr), "--name")
}
