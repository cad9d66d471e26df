// fsasync.go - Context-aware filesystem operations used by the verb handlers.
package server

import (
	"context"
	"io/fs"
	"os"
)

// fileSystem is the filesystem surface the handlers depend on. Stat and
// Remove honour ctx so a handler waiting on slow storage returns as soon as
// the peer goes away.
type fileSystem interface {
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	Remove(ctx context.Context, name string) error
	Open(name string) (*os.File, error)
	// CreateExclusive creates name for writing and fails with fs.ErrExist
	// if anything already exists at that location.
	CreateExclusive(name string) (*os.File, error)
}

type osFileSystem struct{}

type statResult struct {
	info fs.FileInfo
	err  error
}

func (osFileSystem) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	ch := make(chan statResult, 1)
	go func() {
		info, err := os.Stat(name)
		ch <- statResult{info: info, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.info, res.err
	}
}

// Remove keeps running to completion even when ctx ends first; only the
// wait is abandoned.
func (osFileSystem) Remove(ctx context.Context, name string) error {
	ch := make(chan error, 1)
	go func() { ch <- os.Remove(name) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-ch:
		return err
	}
}

func (osFileSystem) Open(name string) (*os.File, error) {
	return os.Open(name)
}

func (osFileSystem) CreateExclusive(name string) (*os.File, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
