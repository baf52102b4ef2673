// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"

	"rtbuffer/cmd"
	"rtbuffer/internal/log"
	"rtbuffer/pkg/build"
)

// main is the entry point for rtbuffer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands (device listing) if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Open the duplex stream, or the simulated one
//   - Hardware callback feeds the double buffer, the worker processes
//   - Recorder, statistics and configuration reloads run beside it
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the stream, finish the recording
//   - Release every configuration snapshot
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags
	if err := build.Initialize(); err != nil {
		log.Debugf("%v", err)
	}

	// PortAudio is initialized by the commands that need hardware.
	if err := cmd.Execute(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
