// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String formats the metadata for a -version flag.
func String(program string) string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("%s %s (%s, built %s)", program, Version, sha, BuildTime)
}
