// Command ncmerge merges two-part containers locally or against an
// ncmerged server.
//
// Usage:
//
//	ncmerge merge [-o merged.nc] [--report] a.nc b.nc
//	ncmerge dump [--format text|json|cbor] file.nc
//	ncmerge push --server URL --name NAME [--encoding zstd] a.nc b.nc
//	ncmerge pull --server URL --name NAME [-o merged.nc]
//	ncmerge ls --server URL
//	ncmerge rm --server URL --name NAME
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `usage: ncmerge <command> [flags] [args]

commands:
  merge   merge two container files into one
  dump    print the schema of a container file
  push    upload two parts to a server
  pull    download the merged container of a dataset
  ls      list the datasets stored on a server
  rm      delete a dataset from a server
`

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"merge": runMerge,
	"dump":  runDump,
	"push":  runPush,
	"pull":  runPull,
	"ls":    runList,
	"rm":    runRemove,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "ncmerge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd(ctx, args[1:], stdout, stderr)
}
