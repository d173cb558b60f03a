package ops

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// CacheUnpack merges a prior cache archive into a working directory.
// The merge is additive: any path already present, such as a file just
// extracted from the source archive, wins over the cached copy.
type CacheUnpack struct {
	common

	// Counters set after Unpack.
	Restored int
	Skipped  int
}

func (c *CacheUnpack) Unpack(archive, dir string) error {
	f, err := os.Open(archive)
	if err != nil {
		return track(err)
	}

	defer f.Close()

	tr := tar.NewReader(f)

	for {
		hdr, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return track(err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || name == ".." ||
			strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return errors.Errorf("cache entry escapes working dir: %s", hdr.Name)
		}

		path := filepath.Join(dir, name)

		if _, err := os.Lstat(path); err == nil {
			c.L().Trace("cache entry already present, skipping", "path", hdr.Name)
			c.Skipped++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return track(err)
		}

		mode := hdr.FileInfo().Mode()

		g, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
		if err != nil {
			return track(err)
		}

		_, err = io.Copy(g, tr)
		if cerr := g.Close(); err == nil {
			err = cerr
		}

		if err != nil {
			return track(err)
		}

		os.Chtimes(path, hdr.ModTime, hdr.ModTime)

		c.Restored++
	}

	c.L().Debug("merged build cache", "archive", archive, "restored", c.Restored, "skipped", c.Skipped)

	return nil
}
