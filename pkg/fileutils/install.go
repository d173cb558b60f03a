package fileutils

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Install copies a file or a directory tree to Dest, preserving file
// modes and modification times. Store-originated sources often carry
// read-only modes; ModeOr is or'ed into every copied entry so outputs
// stay writable where the caller needs them to be.
type Install struct {
	Ctx    context.Context
	L      hclog.Logger
	Path   string
	Dest   string
	ModeOr os.FileMode
}

func (i *Install) shouldCancel() error {
	if i.Ctx == nil {
		return nil
	}

	select {
	case <-i.Ctx.Done():
		return i.Ctx.Err()
	default:
		return nil
	}
}

func (i *Install) Install() error {
	if i.L == nil {
		i.L = hclog.L()
	}

	if _, err := os.Lstat(i.Path); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(i.Dest), 0755); err != nil {
		return err
	}

	return i.copyEntry(i.Path, i.Dest)
}

func (i *Install) copyEntry(from, to string) error {
	if err := i.shouldCancel(); err != nil {
		return err
	}

	i.L.Trace("copy entry", "from", from, "to", to)

	fi, err := os.Lstat(from)
	if err != nil {
		return err
	}

	switch fi.Mode() & os.ModeType {
	case 0: // regular file
		defer os.Chtimes(to, time.Time{}, fi.ModTime())
		return copyRegular(from, to, fi.Mode().Perm()|i.ModeOr.Perm())
	case os.ModeDir:
		if _, err := os.Stat(to); err != nil {
			err = os.Mkdir(to, fi.Mode().Perm()|i.ModeOr.Perm())
			if err != nil {
				return err
			}
		}

		f, err := os.Open(from)
		if err != nil {
			return err
		}

		entries, err := f.Readdirnames(-1)
		f.Close()
		if err != nil && err != io.EOF {
			return err
		}

		sort.Strings(entries)

		for _, name := range entries {
			err = i.copyEntry(filepath.Join(from, name), filepath.Join(to, name))
			if err != nil {
				return err
			}
		}
	case os.ModeSymlink:
		link, err := os.Readlink(from)
		if err != nil {
			return err
		}

		return os.Symlink(link, to)
	}

	return nil
}

func copyRegular(from, to string, mode os.FileMode) error {
	f, err := os.Open(from)
	if err != nil {
		return err
	}

	defer f.Close()

	tg, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	defer tg.Close()

	_, err = io.Copy(tg, f)
	return err
}
