// Package version tracks build metadata for the application.
package version

import (
	"runtime/debug"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version,omitempty"`
}

// String renders "version (commit)".
func (i Info) String() string {
	if i.Commit == "" {
		return i.Version
	}
	return i.Version + " (" + i.Commit + ")"
}

var (
	info      = Info{Version: "dev"}
	infoMutex sync.RWMutex
	readBuild = debug.ReadBuildInfo
)

// Set updates the version metadata exposed by the application.
func Set(v Info) {
	infoMutex.Lock()
	defer infoMutex.Unlock()

	if v.Version == "" {
		v.Version = "dev"
	}
	info = v
}

// Current returns the configured build metadata. Fields left empty by the
// linker flags are filled from the embedded VCS stamp when available.
func Current() Info {
	infoMutex.RLock()
	current := info
	infoMutex.RUnlock()

	build, ok := readBuild()
	if !ok {
		return current
	}
	if current.GoVersion == "" {
		current.GoVersion = build.GoVersion
	}
	if current.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		current.Version = build.Main.Version
	}
	for _, setting := range build.Settings {
		switch setting.Key {
		case "vcs.revision":
			if current.Commit == "" {
				current.Commit = setting.Value
			}
		case "vcs.time":
			if current.BuildTime == "" {
				current.BuildTime = setting.Value
			}
		}
	}
	return current
}
