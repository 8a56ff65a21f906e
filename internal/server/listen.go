package server

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// Listen opens a listener for addr, which is one of:
//
//	HOST:PORT
//	tcp:HOST:PORT
//	unix:/path/to/socket
//	pipe:\\.\pipe\NAME   (Windows only)
func Listen(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, fmt.Errorf("listen address is empty")
	}
	network, address, _ := strings.Cut(addr, ":")
	switch network {
	case "tcp", "unix", "pipe":
		if address == "" {
			return nil, fmt.Errorf("listen address %q has no %s address", addr, network)
		}
	default:
		network, address = "tcp", addr
	}
	switch network {
	case "unix":
		return listenUnix(address)
	case "pipe":
		return listenPipe(address)
	default:
		ln, err := net.Listen("tcp", address)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		return ln, nil
	}
}

// listenUnix removes a stale socket file and listens on path.
func listenUnix(path string) (net.Listener, error) {
	if info, err := os.Stat(path); err == nil && info.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, nil
}
