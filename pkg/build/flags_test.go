// SPDX-License-Identifier: MIT
package build

import (
	"errors"
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = *buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildInfo = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantMissing []string
	}{
		{
			"Development build",
			"", "", "", "",
			[]string{"buildName", "buildTime", "buildCommit", "buildVersion"},
		},
		{
			"Missing BuildTime",
			"testapp", "", "abcdef123", "v1.0.0",
			[]string{"buildTime"},
		},
		{
			"Missing BuildCommit",
			"testapp", "2025-04-13", "", "v1.0.0",
			[]string{"buildCommit"},
		},
		{
			"Success Case",
			"testapp", "2025-04-13", "abcdef123", "v1.0.0",
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildInfo = defaultInfo()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if len(tt.wantMissing) == 0 {
				if err != nil {
					t.Fatalf("Initialize() unexpected error: %v", err)
				}
			} else {
				if !errors.Is(err, ErrMissingFlag) {
					t.Fatalf("Initialize() = %v, want ErrMissingFlag", err)
				}
				for _, name := range tt.wantMissing {
					if !strings.Contains(err.Error(), name) {
						t.Errorf("Initialize() error %q does not name %s", err, name)
					}
				}
			}

			info := GetBuildFlags()
			check := func(field, got, ldflag, fallback string) {
				want := ldflag
				if want == "" {
					want = fallback
				}
				if got != want {
					t.Errorf("%s = %q, want %q", field, got, want)
				}
			}
			check("Name", info.Name, tt.buildName, DefaultName)
			check("Time", info.Time, tt.buildTime, DefaultValue)
			check("Commit", info.Commit, tt.buildCommit, DefaultValue)
			check("Version", info.Version, tt.buildVer, DefaultValue)
			if info.Description != DefaultDescription {
				t.Errorf("Description = %q, want %q", info.Description, DefaultDescription)
			}
		})
	}
}

func TestGetBuildFlagsReturnsCopy(t *testing.T) {
	buildInfo = defaultInfo()
	info := GetBuildFlags()
	info.Name = "changed"

	if GetBuildFlags().Name != DefaultName {
		t.Error("GetBuildFlags() must not expose the package state")
	}
	if got := GetBuildFlags().String(); got != "rtbuffer dev (commit dev, built dev)" {
		t.Errorf("String() = %q", got)
	}
}
