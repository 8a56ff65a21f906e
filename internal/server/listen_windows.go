// listen_windows.go serves the API on a named pipe (\\.\pipe\NAME) using the
// go-winio library.

//go:build windows

package server

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeSDDL grants access to the creator owner only.
const pipeSDDL = "D:P(A;;GA;;;OW)"

func listenPipe(path string) (net.Listener, error) {
	ln, err := winio.ListenPipe(path, &winio.PipeConfig{SecurityDescriptor: pipeSDDL})
	if err != nil {
		return nil, fmt.Errorf("listen on pipe %s: %w", path, err)
	}
	return ln, nil
}
