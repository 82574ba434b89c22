package common

// Version is the application version, overridden at build time via
// -ldflags "-X github.com/ternarybob/prospector/internal/common.Version=..."
var Version = "0.1.0-dev"

// Build is the build identifier set at build time.
var Build = "local"
