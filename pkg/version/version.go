package version

// Set with -ldflags "-X github.com/cfoust/yard/pkg/version.Version=..." at
// build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)
