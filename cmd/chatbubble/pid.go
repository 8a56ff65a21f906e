package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// PID Lock
// ///////////////////////////////////////////////

// runningError reports that another daemon holds the PID lock.
type runningError struct {
	// PID is the other process, or 0 when the file could not be parsed.
	PID int
}

func (e *runningError) Error() string {
	if e.PID == 0 {
		return "daemon already running"
	}
	return fmt.Sprintf("daemon already running (pid %d)", e.PID)
}

// pidLock is an exclusively locked PID file. The lock lives as long as the
// file stays open, so a crashed daemon never blocks the next start.
type pidLock struct {
	// path is the PID file.
	path string
	// token proves ownership when removing the file.
	token string
	// f holds the OS lock.
	f *os.File
}

// pidToken returns 16 random hex characters.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// acquirePID locks path and writes "PID:TOKEN" to it. If another process
// holds the lock it returns a *runningError.
func acquirePID(path string) (*pidLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		data, _ := os.ReadFile(path)
		return nil, &runningError{PID: parsePID(data)}
	}

	token := pidToken()
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), token)), 0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &pidLock{path: path, token: token, f: f}, nil
}

// Release unlocks and closes the file, removing it if it still carries our
// token.
func (l *pidLock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unlockFile(l.f)
	l.f.Close()
	l.f = nil
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, tok, ok := strings.Cut(string(data), ":"); ok && tok == l.token {
		os.Remove(l.path)
	}
}

// parsePID extracts the PID from "PID:TOKEN" content.
func parsePID(data []byte) int {
	s, _, _ := strings.Cut(strings.TrimSpace(string(data)), ":")
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return pid
}

// isRunning reports whether err means another daemon is running.
func isRunning(err error) bool {
	var re *runningError
	return errors.As(err, &re)
}
