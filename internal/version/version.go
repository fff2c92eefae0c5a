// Package version reports build details embedded by the go toolchain
package version

import (
	"runtime"
	"runtime/debug"
	"time"
)

// Info describes the running binary
type Info struct {
	GoVersion  string    `json:"goVersion" yaml:"goVersion"`
	GoCompiler string    `json:"goCompiler" yaml:"goCompiler"`
	Platform   string    `json:"platform" yaml:"platform"`
	Module     string    `json:"module,omitempty" yaml:"module,omitempty"`
	Version    string    `json:"version,omitempty" yaml:"version,omitempty"`
	VCSRef     string    `json:"vcsRef,omitempty" yaml:"vcsRef,omitempty"`
	VCSTime    time.Time `json:"vcsTime,omitempty" yaml:"vcsTime,omitempty"`
	VCSState   string    `json:"vcsState,omitempty" yaml:"vcsState,omitempty"`
}

// GetInfo reads the build info of the current binary
func GetInfo() Info {
	i := Info{
		GoVersion:  runtime.Version(),
		GoCompiler: runtime.Compiler,
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return i
	}
	i.Module = bi.Main.Path
	i.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.VCSRef = s.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				i.VCSTime = t
			}
		case "vcs.modified":
			i.VCSState = "clean"
			if s.Value == "true" {
				i.VCSState = "dirty"
			}
		}
	}
	return i
}
