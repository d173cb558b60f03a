package ops

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"lab47.dev/strata/pkg/data"
)

// outputHints is the remediation text emitted when a build leaves
// nothing at the output path, in both copy and script mode.
var outputHints = []string{
	"copy a single file with 'cp bin $out'",
	"copy multiple files with 'mkdir -p $out && cp bin/* $out/'",
	"copy files from an Autotools project with 'make install PREFIX=$out'",
}

// CopyInstall implements the no-script build mode: the static install
// prefix is copied into the output path, and every textual occurrence
// of the prefix path inside the copied files is rewritten to the
// output path.
type CopyInstall struct {
	common
}

func (c *CopyInstall) Install(ctx context.Context, req *data.BuildRequest) error {
	ui := GetUI(ctx)

	fi, err := os.Stat(req.InstallPrefix)
	if err != nil {
		ui.Error("Install prefix '%s' does not exist.", req.InstallPrefix)
		for _, h := range outputHints {
			ui.Hint(h)
		}

		return errors.Wrapf(ErrMissingPrefix, "prefix: %s", req.InstallPrefix)
	}

	rewrite := strings.NewReplacer(req.InstallPrefix, req.OutPath)

	if fi.IsDir() {
		err = c.copyTree(req.InstallPrefix, req.OutPath, rewrite)
	} else {
		err = c.copyFile(req.InstallPrefix, req.OutPath, fi, rewrite)
	}

	if err != nil {
		return track(err)
	}

	if runtime.GOOS == "darwin" {
		return c.resign(req.OutPath)
	}

	return nil
}

func (c *CopyInstall) copyTree(from, to string, rewrite *strings.Replacer) error {
	return filepath.Walk(from, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}

		target := filepath.Join(to, rel)

		switch fi.Mode() & os.ModeType {
		case os.ModeDir:
			// Write permission kept so later pipeline stages can
			// rename and wrap entries under bin.
			return os.MkdirAll(target, fi.Mode().Perm()|0200)
		case os.ModeSymlink:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(rewrite.Replace(link), target)
		case 0:
			return c.copyFile(path, target, fi, rewrite)
		default:
			c.L().Debug("skipping irregular entry", "path", path)
			return nil
		}
	})
}

func (c *CopyInstall) copyFile(from, to string, fi os.FileInfo, rewrite *strings.Replacer) error {
	content, err := ioutil.ReadFile(from)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(to), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm()|0200)
	if err != nil {
		return err
	}

	_, err = rewrite.WriteString(f, string(content))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return err
	}

	return os.Chtimes(to, time.Time{}, fi.ModTime())
}

// resign re-applies an ad hoc code signature to every executable in
// the output. Rewriting embedded prefix paths invalidates existing
// signatures on darwin.
func (c *CopyInstall) resign(out string) error {
	codesign, err := exec.LookPath("codesign")
	if err != nil || codesign == "" {
		return nil
	}

	return filepath.Walk(out, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !fi.Mode().IsRegular() || fi.Mode().Perm()&0111 == 0 {
			return nil
		}

		cmd := exec.Command(codesign, "--force", "--sign", "-", path)
		if out, err := cmd.CombinedOutput(); err != nil {
			c.L().Debug("codesign failed", "path", path, "output", string(out))
		}

		return nil
	})
}
