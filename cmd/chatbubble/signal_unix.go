// Shutdown signals on Unix: SIGINT from a terminal and SIGTERM from process
// managers such as systemd or a container runtime.

//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that stop the daemon.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
