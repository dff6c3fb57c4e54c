package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sydlexius/encore/internal/version"
)

const usage = `Usage: encore <command> [flags]

Commands:
  serve            run the HTTP server (default)
  cache-warm       resolve and cache tour lists for artists
  cache-inspect    show what is cached for an artist
  cache-clear      delete cache entries by key prefix
  version          print version information

Run "encore <command> -h" for command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. With no arguments the server starts.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(ctx, args, stderr)
	case "cache-warm":
		return runCacheWarm(ctx, args, stdout, stderr)
	case "cache-inspect":
		return runCacheInspect(ctx, args, stdout, stderr)
	case "cache-clear":
		return runCacheClear(ctx, args, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "encore %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
