package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sydlexius/encore/internal/logging"
	"github.com/sydlexius/encore/internal/pipeline"
	"github.com/sydlexius/encore/internal/tourcache"
)

// openForCommand loads config and opens the app with logs on stderr so the
// command's own output stays clean on stdout.
func openForCommand() (*app, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Logging
	logCfg.Output = logging.OutputStderr
	logCfg.FilePath = ""
	return newApp(cfg, logCfg)
}

func runCacheWarm(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cache-warm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "read artist names from `path`, one per line")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: encore cache-warm [-file list.txt] [artist...]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	artists := fs.Args()
	if *file != "" {
		fromFile, err := readArtistFile(*file)
		if err != nil {
			return err
		}
		artists = append(artists, fromFile...)
	}
	if len(artists) == 0 {
		artists = pipeline.DefaultWarmArtists
	}

	a, err := openForCommand()
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, name := range artists {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := a.runner.Warm(ctx, name)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			fmt.Fprintf(stdout, "FAIL  %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(stdout, "ok    %s -> %s (%d tours, %s)\n", res.Artist, res.Slug, res.Tours, res.Completeness)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d artists failed to warm", failed, len(artists))
	}
	return nil
}

func readArtistFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("opening artist list: %w", err)
	}
	defer f.Close() //nolint:errcheck
	names, err := readArtistList(f)
	if err != nil {
		return nil, fmt.Errorf("reading artist list %s: %w", path, err)
	}
	return names, nil
}

// readArtistList returns one artist per non-blank line. Lines starting with
// '#' are comments.
func readArtistList(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	return names, sc.Err()
}

func runCacheInspect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cache-inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	artistName := fs.String("artist", "", "artist `name` to inspect (required)")
	mbid := fs.String("mbid", "", "limit tour sets to this MusicBrainz `id`")
	asJSON := fs.Bool("json", false, "print the inspection as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*artistName) == "" {
		fs.Usage()
		return errors.New("-artist is required")
	}

	a, err := openForCommand()
	if err != nil {
		return err
	}
	defer a.Close()

	insp, err := a.cache.Inspect(ctx, *artistName, strings.TrimSpace(*mbid))
	if err != nil {
		return fmt.Errorf("inspecting cache: %w", err)
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(insp)
	}
	return printInspection(stdout, insp)
}

func printInspection(w io.Writer, insp *tourcache.Inspection) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "artist\t%s\n", insp.Artist)
	fmt.Fprintf(tw, "slug key\t%s\n", insp.SlugKey)
	if insp.Slug == "" {
		fmt.Fprintf(tw, "slug\t(not cached)\n")
	} else {
		fmt.Fprintf(tw, "slug\t%s (%s)\n", insp.Slug, describeTTL(insp.SlugTTL))
	}
	fmt.Fprintf(tw, "tour sets\t%d\n", len(insp.Entries))
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range insp.Entries {
		fmt.Fprintf(w, "\n%s (%s)\n", e.Key, describeTTL(e.TTL))
		if e.Set == nil {
			continue
		}
		fmt.Fprintf(w, "  created %s, updated %s, checked %s\n",
			formatStamp(e.Set.CreatedAt), formatStamp(e.Set.LastUpdated), formatStamp(e.Set.LastChecked))
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  TOUR\tSHOWS\tFIRST\tLAST")
		for _, t := range e.Set.Tours {
			fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", t.Name, t.ShowCount, t.FirstShow, t.LastShow)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func describeTTL(d time.Duration) string {
	if d == tourcache.NoExpiry {
		return "no expiry"
	}
	return "expires in " + d.Round(time.Minute).String()
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func runCacheClear(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cache-clear", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "", "only delete keys starting with `prefix` (default: everything)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openForCommand()
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.cache.Clear(ctx, *prefix)
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	if *prefix == "" {
		fmt.Fprintf(stdout, "removed %d entries\n", removed)
	} else {
		fmt.Fprintf(stdout, "removed %d entries with prefix %q\n", removed, *prefix)
	}
	return nil
}
