package ops

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lab47.dev/strata/pkg/progress"
)

// CachePack snapshots a working directory into an uncompressed tar.
// Only plain files are archived, sorted by path, with ownership fields
// normalized, so re-running over an unchanged tree yields identical
// bytes on every platform. Compression is deliberately omitted: the
// archive is replaced wholesale on each run and byte stability matters
// more than size.
type CachePack struct {
	common

	// Total bytes of file content written, set after Pack.
	Size int64
}

func (c *CachePack) Pack(ctx context.Context, dir string, w io.Writer) error {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return track(err)
	}

	sort.Strings(files)

	tw := tar.NewWriter(w)
	defer tw.Close()

	pb := progress.Count(ctx, int64(len(files)), "pack cache")
	defer pb.Close()

	for _, file := range files {
		err := c.packFile(tw, dir, file)
		if err != nil {
			return track(err)
		}

		pb.Tick()
	}

	return tw.Close()
}

func (c *CachePack) packFile(tw *tar.Writer, dir, file string) error {
	fi, err := os.Lstat(file)
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}

	hdr.Uid = 0
	hdr.Gid = 0
	hdr.Uname = ""
	hdr.Gname = ""

	// Modification time is the one attribute worth keeping: the next
	// build's freshness checks depend on it. Access and change times
	// are noise.
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	hdr.ModTime = fi.ModTime().Truncate(time.Second)
	hdr.Name = file[len(dir)+1:]
	hdr.Format = tar.FormatPAX

	err = tw.WriteHeader(hdr)
	if err != nil {
		return fmt.Errorf("error writing file header: %s: %w", hdr.Name, err)
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}

	defer f.Close()

	n, err := io.Copy(tw, f)
	c.Size += n

	return err
}
