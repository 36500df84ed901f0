// Package version records build metadata for the capture tools. The values
// are overridden at build time via -ldflags:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.3 \
//	    -X .../internal/version.GitSHA=$(git rev-parse --short HEAD) \
//	    -X .../internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release version of the capture tools
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
