// Package version carries build metadata injected with -ldflags.
package version

// Set at build time: -ldflags "-X github.com/sydlexius/encore/internal/version.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent returns the User-Agent sent to upstream APIs.
func UserAgent() string {
	return "Encore/" + Version + " (https://github.com/sydlexius/encore)"
}
