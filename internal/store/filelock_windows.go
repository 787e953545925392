//go:build windows

package store

import (
	"fmt"
	"os"
)

// fileLock on windows is a stub: the sidecar file is opened normally and
// Lock and Unlock do nothing. Only the in-process mutex serializes access;
// there is no cross-process exclusion on windows.
type fileLock struct {
	f *os.File
}

func newFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open lock file %s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Lock() error   { return nil }
func (l *fileLock) Unlock() error { return nil }
func (l *fileLock) Close() error  { return l.f.Close() }
