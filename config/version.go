package config

import "fmt"

const AppName = "owlface"

// Overridden by the release build:
//
//	-ldflags "-X github.com/owlfacerec/owlface/config.Version=v1.2.0 ..."
var (
	Version    = "dev"
	CommitHash = "n/a"
	BuildTime  = "n/a"
)

// VersionString is sent in the X-Owlface-Version header and printed by --version.
var VersionString = versionString()

func versionString() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", AppName, Version, CommitHash, BuildTime)
}
