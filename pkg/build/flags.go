// SPDX-License-Identifier: MIT
//
// Package build holds the version information linked into the binary with
// -ldflags, for example:
//
//	go build -ldflags "-X rtbuffer/pkg/build.buildVersion=v0.3.0 \
//	    -X rtbuffer/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds run without any of them and report "dev" values.
package build

import (
	"errors"
	"fmt"
)

const (
	DefaultName        = "rtbuffer"
	DefaultDescription = "Real-time audio buffering engine"
	DefaultValue       = "dev"
)

// ErrMissingFlag is wrapped by Initialize for every flag the linker did not
// set.
var ErrMissingFlag = errors.New("build flag not set")

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        DefaultValue,
		Commit:      DefaultValue,
		Version:     DefaultValue,
	}
}

// Initialize copies the linker supplied values into the build info. Flags
// that were not set keep their development defaults; the returned error
// lists them so release builds can refuse to start.
func Initialize() error {
	var errs []error
	set := func(name, value string, dst *string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingFlag, name))
			return
		}
		*dst = value
	}
	set("buildName", buildName, &buildInfo.Name)
	set("buildTime", buildTime, &buildInfo.Time)
	set("buildCommit", buildCommit, &buildInfo.Commit)
	set("buildVersion", buildVersion, &buildInfo.Version)
	return errors.Join(errs...)
}

// GetBuildFlags returns the build information. Call Initialize first.
func GetBuildFlags() Info {
	return *buildInfo
}
