// Shutdown signals on Windows. SIGTERM does not exist there; the runtime
// maps Ctrl+C, Ctrl+Break and console close to os.Interrupt.

//go:build windows

package main

import "os"

// shutdownSignals are the signals that stop the daemon.
var shutdownSignals = []os.Signal{os.Interrupt}
