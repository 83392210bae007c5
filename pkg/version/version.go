// Package version reports build metadata and the collaborators compiled
// into the binary. The variables are set at link time, e.g.
// -ldflags "-X github.com/nine15pm/GrokEval/pkg/version.Version=v0.3.0".
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/nine15pm/GrokEval/pkg/plugin"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is what "grokeval version" prints.
type Info struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
	Platform  string
	// Plugins lists the registered plugin names of each kind.
	Plugins map[string][]string
}

// Get collects the build metadata and the plugins registered so far.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Plugins:   plugin.Names(),
	}
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "grokeval version %s (commit: %s, built: %s, go: %s, %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
	for _, kind := range plugin.Kinds() {
		names := "none"
		if len(i.Plugins[kind]) > 0 {
			names = strings.Join(i.Plugins[kind], ", ")
		}
		fmt.Fprintf(&b, "\n  %-7s %s", kind+":", names)
	}
	return b.String()
}

// GetVersionInfo returns the multi-line version report.
func GetVersionInfo() string {
	return Get().String()
}
