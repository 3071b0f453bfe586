package cli

// Release builds override these with
// -ldflags "-X github.com/felixgeelhaar/devwatch/internal/cli.Version=v0.3.0 ...".
// Plain go builds report a dev version.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
