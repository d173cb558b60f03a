// Package gc removes the droppings of interrupted builds: working
// directories whose pipeline never got to its cleanup, and half-written
// cache archives left behind by a crash between create and rename.
package gc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lab47.dev/strata/pkg/progress"
)

type Cleaner struct {
	buildDir string
}

func NewCleaner(buildDir string) *Cleaner {
	return &Cleaner{buildDir: filepath.Clean(buildDir)}
}

// leftover reports whether a directory entry is the residue of a build:
// a per-package working directory or a cache temp file that never got
// renamed into place.
func leftover(name string) bool {
	return strings.HasPrefix(name, "build-") || strings.HasSuffix(name, ".tmp")
}

// Stale lists leftovers not touched within the given age. A running
// build keeps its working directory fresh, so a generous age makes
// sweeping safe to run concurrently with builds.
func (c *Cleaner) Stale(olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)

	f, err := os.Open(c.buildDir)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	var stale []string

	for {
		names, err := f.Readdirnames(100)
		if err != nil {
			if err == io.EOF {
				break
			}

			return nil, err
		}

		for _, name := range names {
			if !leftover(name) {
				continue
			}

			fi, err := os.Lstat(filepath.Join(c.buildDir, name))
			if err != nil {
				return nil, err
			}

			if fi.ModTime().Before(cutoff) {
				stale = append(stale, name)
			}
		}
	}

	sort.Strings(stale)

	return stale, nil
}

type SweepResult struct {
	Removed        []string
	BytesRecovered int64
	EntriesRemoved int64
}

func (c *Cleaner) Sweep(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	stale, err := c.Stale(olderThan)
	if err != nil {
		return nil, err
	}

	var sr SweepResult
	sr.Removed = stale

	pb := progress.Count(ctx, int64(len(stale)), "Removing build leftovers")
	defer pb.Close()

	for _, name := range stale {
		err := c.remove(name, &sr)
		if err != nil {
			return nil, err
		}

		pb.Tick()
	}

	return &sr, nil
}

func (c *Cleaner) remove(name string, sr *SweepResult) error {
	root := filepath.Join(c.buildDir, name)

	// Extracted sources routinely carry read-only entries; reopen them
	// for writing so RemoveAll can take the tree down.
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().Perm()&0200 == 0 {
			err = os.Chmod(path, info.Mode().Perm()|0200)
			if err != nil {
				return err
			}
		}

		sr.EntriesRemoved++
		sr.BytesRecovered += info.Size()
		return nil
	})

	return os.RemoveAll(root)
}
