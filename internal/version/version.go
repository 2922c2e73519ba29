package version

import "fmt"

// Version values are set at build time using -ldflags, e.g.
// -X dirwatch/internal/version.Version=1.4.0.
var Version = "dev"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func GetVersionInfo() VersionInfo {
	version := Version
	if version == "" {
		version = "dev"
	}
	return VersionInfo{
		Version:   version,
		Built:     Built,
		GitCommit: GitCommit,
	}
}

// Banner is the one-line --version output for program.
func Banner(program string) string {
	info := GetVersionInfo()
	if info.Version == "dev" {
		return program + " dev"
	}
	banner := fmt.Sprintf("%s version %s", program, info.Version)
	if info.GitCommit != "" {
		banner += " (" + info.GitCommit + ")"
	}
	return banner
}
