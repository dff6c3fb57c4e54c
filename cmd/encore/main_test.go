package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

const radioheadArtist = `{"mbid":"a74b1b7f-71a5-4011-9441-d0b5e4122711","name":"Radiohead","sortName":"Radiohead","url":"https://www.setlist.fm/setlists/radiohead-bd6bd12.html"}`

func radioheadShow(id, date string) string {
	return fmt.Sprintf(`{
  "id": %q,
  "eventDate": %q,
  "artist": %s,
  "venue": {"name": "O2 Arena", "city": {"name": "London", "country": {"code": "GB", "name": "United Kingdom"}}},
  "tour": {"name": "In Rainbows Tour"},
  "sets": {"set": [{"song": [{"name": "15 Step"}, {"name": "Reckoner"}]}]}
}`, id, date, radioheadArtist)
}

// fakeSetlistFM serves one artist with a single page of two shows.
func fakeSetlistFM(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/artists":
			fmt.Fprintf(w, `{"type":"artists","itemsPerPage":30,"page":1,"total":1,"artist":[%s]}`, radioheadArtist)
		case "/search/setlists":
			fmt.Fprintf(w, `{"type":"setlists","itemsPerPage":20,"page":1,"total":2,"setlist":[%s,%s]}`,
				radioheadShow("1", "25-08-2008"), radioheadShow("2", "24-08-2008"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupEnv points config at a fresh database and the given upstream.
func setupEnv(t *testing.T, upstream string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENCORE_CONFIG_PATH", filepath.Join(dir, "config.yaml"))
	t.Setenv("ENCORE_DB_PATH", filepath.Join(dir, "encore.db"))
	t.Setenv("ENCORE_LOG_LEVEL", "error")
	t.Setenv("SETLISTFM_API_KEY", "test-key")
	t.Setenv("ENCORE_SETLISTFM_BASE_URL", upstream)
	t.Setenv("ENCORE_SCRAPER_URL", "")
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunVersionAndHelp(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil || !strings.HasPrefix(out, "encore ") {
		t.Errorf("version: out=%q err=%v", out, err)
	}
	out, err = runCmd(t, "help")
	if err != nil || !strings.Contains(out, "cache-warm") {
		t.Errorf("help: out=%q err=%v", out, err)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if _, err := runCmd(t, "frobnicate"); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestReadArtistList(t *testing.T) {
	in := "# headliners\nRadiohead\n\n  Björk  \n#skip\nSigur Rós\n"
	got, err := readArtistList(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readArtistList: %v", err)
	}
	want := []string{"Radiohead", "Björk", "Sigur Rós"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCacheInspectRequiresArtist(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	if _, err := runCmd(t, "cache-inspect"); err == nil {
		t.Error("expected error without -artist")
	}
}

func TestCacheWarmInspectClear(t *testing.T) {
	srv := fakeSetlistFM(t)
	setupEnv(t, srv.URL)

	out, err := runCmd(t, "cache-warm", "Radiohead")
	if err != nil {
		t.Fatalf("cache-warm: %v (output %q)", err, out)
	}
	if !strings.Contains(out, "radiohead-bd6bd12") || !strings.Contains(out, "complete") {
		t.Errorf("unexpected warm output: %q", out)
	}

	out, err = runCmd(t, "cache-inspect", "-artist", "Radiohead")
	if err != nil {
		t.Fatalf("cache-inspect: %v", err)
	}
	for _, want := range []string{"radiohead-bd6bd12", "tours:radiohead-bd6bd12", "In Rainbows Tour"} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, "cache-inspect", "-artist", "Radiohead", "-json")
	if err != nil || !strings.Contains(out, `"slug": "radiohead-bd6bd12"`) {
		t.Errorf("json inspect: out=%q err=%v", out, err)
	}

	out, err = runCmd(t, "cache-clear", "-prefix", "tours:")
	if err != nil {
		t.Fatalf("cache-clear: %v", err)
	}
	if !strings.Contains(out, "removed 1 entries") {
		t.Errorf("unexpected clear output: %q", out)
	}

	out, err = runCmd(t, "cache-clear")
	if err != nil || !strings.Contains(out, "removed 1 entries") {
		t.Errorf("clear all: out=%q err=%v", out, err)
	}
}

func TestCacheWarmReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"type":"artists","itemsPerPage":30,"page":1,"total":0,"artist":[]}`)
	}))
	defer srv.Close()
	setupEnv(t, srv.URL)

	out, err := runCmd(t, "cache-warm", "Nobody In Particular")
	if err == nil {
		t.Fatal("expected error when an artist cannot be warmed")
	}
	if !strings.Contains(out, "FAIL  Nobody In Particular") {
		t.Errorf("unexpected output: %q", out)
	}
}
