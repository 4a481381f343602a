// Package version provides the build version of the binaries
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// Build and Commit are populated at build time via ldflags:
//
//	-X github.com/effective-security/cryptoki/internal/version.Build=v1.2.3
var (
	Build  = "v0.0.0-in-progress"
	Commit = ""
)

// Info describes the version
type Info struct {
	Build  string
	Commit string
	Major  uint
	Minor  uint
	Patch  uint
}

// String returns the build version, with the commit if known
func (v Info) String() string {
	if v.Commit == "" {
		return v.Build
	}
	return fmt.Sprintf("%s (%s)", v.Build, v.Commit)
}

// Current returns the version of the running binary
func Current() Info {
	return parse(Build, commit())
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return ""
}

func parse(build, commit string) Info {
	v := Info{Build: build, Commit: commit}

	s := strings.TrimPrefix(build, "v")
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.SplitN(s, ".", 3)
	nums := []*uint{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			break
		}
		*nums[i] = uint(n)
	}
	return v
}
