// Package version holds the release string the binaries report.
package version

// Version is overridable at link time:
//
//	go build -ldflags "-X github.com/aiifabbf/kvs/internal/version.Version=..."
var Version = "0.1.0"
