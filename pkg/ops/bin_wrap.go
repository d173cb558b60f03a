package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"lab47.dev/strata/pkg/data"
)

// BinWrap replaces every top-level executable under bin/sbin with a
// generated launcher that re-enters the wrapper environment before
// execing the original. The original is renamed to a hidden sibling;
// symlinks are left untouched, wrapping a link is not supported.
type BinWrap struct {
	common

	Env *BuildEnv
}

func hiddenName(name string) string {
	return "." + name + "-wrapped"
}

func (b *BinWrap) Wrap(req *data.BuildRequest) error {
	for _, d := range binDirs {
		dir := filepath.Join(req.OutPath, d)

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, ent := range entries {
			if strings.HasPrefix(ent.Name(), ".") {
				continue
			}

			if ent.Type()&os.ModeSymlink != 0 {
				b.L().Debug("leaving symlink unwrapped", "entry", ent.Name())
				continue
			}

			err := b.wrapEntry(req, dir, ent.Name())
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *BinWrap) wrapEntry(req *data.BuildRequest, dir, name string) error {
	path := filepath.Join(dir, name)

	fi, err := os.Stat(path)
	if err != nil {
		return track(err)
	}

	if !isExecutable(fi) {
		return errors.Wrapf(ErrNotExecutable, "entry: %s", path)
	}

	hidden := filepath.Join(dir, hiddenName(name))

	// Re-wrapping an already wrapped tree must not rename the launcher
	// over the hidden original. Regenerate the launcher only.
	if _, err := os.Lstat(hidden); err == nil {
		b.L().Debug("already wrapped, regenerating launcher", "entry", path)
		return b.writeLauncher(req, path, hidden, os.O_TRUNC)
	}

	if err := os.Rename(path, hidden); err != nil {
		return track(err)
	}

	return b.writeLauncher(req, path, hidden, os.O_EXCL)
}

func (b *BinWrap) writeLauncher(req *data.BuildRequest, path, hidden string, flag int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|flag, 0755)
	if err != nil {
		return track(err)
	}

	_, err = f.WriteString(b.launcherText(req, hidden))
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return track(err)
	}

	b.L().Debug("wrapped executable", "entry", path, "original", hidden)

	return nil
}

// launcherText renders the wrapper script. The wrapper env's activate
// entry point runs in its fast non-interactive mode, the startup hook
// records the effective argv0, and the hidden original receives the
// launcher's own argv0 so programs that inspect their invocation name
// keep working.
func (b *BinWrap) launcherText(req *data.BuildRequest, hidden string) string {
	activate := filepath.Join(req.WrapperEnvRef, "activate")

	var sb strings.Builder

	sb.WriteString("#!/bin/sh\n")
	sb.WriteString("# Generated launcher; the original lives next to this file.\n")
	fmt.Fprintf(&sb, "STRATA_ENV=%s\n", shellQuote(req.WrapperEnvRef))
	fmt.Fprintf(&sb, "STRATA_BUILD_OUT=%s\n", shellQuote(req.OutPath))
	fmt.Fprintf(&sb, "STRATA_RUNTIME_DIR=%s\n", shellQuote(b.Env.RuntimeDir))
	sb.WriteString("STRATA_SET_ARG0=\"$0\"\n")
	sb.WriteString("export STRATA_ENV STRATA_BUILD_OUT STRATA_RUNTIME_DIR STRATA_SET_ARG0\n")
	fmt.Fprintf(&sb, "exec %s --quiet --no-profile -- %s \"$@\"\n",
		shellQuote(activate), shellQuote(hidden))

	return sb.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
