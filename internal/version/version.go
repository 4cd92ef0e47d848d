package version

// Version is the current version of the saktris CLI.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/tomgun/saktris-game-sub005/internal/version.Version=v1.0.0'"
var Version = "dev"
