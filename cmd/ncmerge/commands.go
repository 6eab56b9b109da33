package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/dreamware/ncmerge/internal/client"
	"github.com/dreamware/ncmerge/internal/codec"
	"github.com/dreamware/ncmerge/internal/container"
	"github.com/dreamware/ncmerge/internal/ctxlog"
	"github.com/dreamware/ncmerge/internal/merge"
	"github.com/dreamware/ncmerge/internal/partstore"
	"github.com/dreamware/ncmerge/internal/server"
)

// newFlagSet returns a flag set for one subcommand with the shared
// --log-level flag.
func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("ncmerge "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("log-level", "warn", "log level: debug, info, warn, error")
	return fs, level
}

func withLogger(ctx context.Context, level string, stderr io.Writer) (context.Context, error) {
	if _, err := ctxlog.ParseLevel(level); err != nil {
		return ctx, err
	}
	return ctxlog.WithLogger(ctx, ctxlog.NewLogger(level, "text", stderr)), nil
}

// writeOutput writes data to path, or to stdout when path is "-".
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func runMerge(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("merge", stderr)
	out := fs.StringP("output", "o", "merged.nc", "output file, - for stdout")
	report := fs.Bool("report", false, "print the merge report as JSON to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("merge: want exactly two input files")
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}

	a, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	b, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	res, err := merge.New(nil).Merge(ctx, a, b)
	if err != nil {
		return err
	}
	if *report {
		enc := json.NewEncoder(stderr)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Report); err != nil {
			return err
		}
	}
	return writeOutput(*out, res.Data, stdout)
}

func runDump(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("dump", stderr)
	format := fs.StringP("format", "f", "text", "output format: text, json or cbor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("dump: want exactly one input file")
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	c, err := codec.NewCDF().Open(data)
	if err != nil {
		return fmt.Errorf("open %s: %w", fs.Arg(0), err)
	}
	desc := container.Describe(c)
	ctxlog.FromContext(ctx).Debug("decoded container", "file", fs.Arg(0), "format", desc.Format,
		"dimensions", len(desc.Dimensions), "variables", len(desc.Variables))

	switch *format {
	case "text":
		return writeCDL(stdout, desc)
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	case "cbor":
		body, err := server.MarshalCBOR(desc)
		if err != nil {
			return err
		}
		_, err = stdout.Write(body)
		return err
	default:
		return fmt.Errorf("dump: unknown format %q", *format)
	}
}

// remoteFlags registers --server and, when withName is set, --name.
func remoteFlags(fs *pflag.FlagSet, withName bool) (srv, name *string) {
	srv = fs.StringP("server", "s", "http://localhost:8080", "ncmerged base URL")
	if withName {
		name = fs.StringP("name", "n", "", "dataset name")
	}
	return srv, name
}

func runPush(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("push", stderr)
	srv, name := remoteFlags(fs, true)
	encoding := fs.String("encoding", client.EncodingZstd, "upload encoding: zstd, gzip or empty for none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 || *name == "" {
		return errors.New("push: want --name and exactly two input files")
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}
	c, err := client.New(*srv, client.WithEncoding(*encoding))
	if err != nil {
		return err
	}
	for i, slot := range []partstore.Slot{partstore.SlotA, partstore.SlotB} {
		data, err := os.ReadFile(fs.Arg(i))
		if err != nil {
			return err
		}
		resp, err := c.PutPart(ctx, *name, slot, data)
		if err != nil {
			return fmt.Errorf("upload part %s: %w", slot, err)
		}
		ctxlog.FromContext(ctx).Info("uploaded part", "dataset", resp.Name, "part", resp.Part, "bytes", resp.Bytes)
		fmt.Fprintf(stdout, "%s\t%s\t%d\t%s\n", resp.Name, resp.Part, resp.Bytes, resp.Digest)
	}
	return nil
}

func runPull(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("pull", stderr)
	srv, name := remoteFlags(fs, true)
	out := fs.StringP("output", "o", "merged.nc", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("pull: --name is required")
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}
	c, err := client.New(*srv)
	if err != nil {
		return err
	}
	res, err := c.Read(ctx, *name, "")
	if err != nil {
		return err
	}
	if len(res.Skipped) > 0 {
		ctxlog.FromContext(ctx).Warn("server skipped variables", slog.Any("variables", res.Skipped))
	}
	return writeOutput(*out, res.Data, stdout)
}

func runList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("ls", stderr)
	srv, _ := remoteFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}
	c, err := client.New(*srv)
	if err != nil {
		return err
	}
	list, err := c.List(ctx)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("listed datasets", "server", *srv, "count", len(list))
	for _, d := range list {
		fmt.Fprintf(stdout, "%s\ta=%d\tb=%d\t%s\n", d.Name, d.ABytes, d.BBytes, d.Updated.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func runRemove(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, level := newFlagSet("rm", stderr)
	srv, name := remoteFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("rm: --name is required")
	}
	ctx, err := withLogger(ctx, *level, stderr)
	if err != nil {
		return err
	}
	c, err := client.New(*srv)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, *name); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("dataset deleted", "server", *srv, "dataset", *name)
	return nil
}
