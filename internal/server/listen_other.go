//go:build !windows

package server

import (
	"errors"
	"net"
)

func listenPipe(string) (net.Listener, error) {
	return nil, errors.New("named pipes are only available on Windows")
}
