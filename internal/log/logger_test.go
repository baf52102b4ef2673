// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		level LogLevel
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{" error ", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			level, ok := ParseLevel(tt.in)
			if level != tt.level || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, level, ok, tt.level, tt.ok)
			}
		})
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel(GetLevel())

	SetLevel(LevelWarn)
	l := For("dbasync")
	l.Infof("dropped %d", 1)
	l.Warnf("xruns: %d", 3)
	Errorf("plain")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "[WARN]  dbasync: xruns: 3") {
		t.Errorf("missing tagged warning: %q", out)
	}
	if !strings.Contains(out, "[ERROR] plain") {
		t.Errorf("missing untagged error: %q", out)
	}
}
