package ops

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"lab47.dev/strata/pkg/data"
)

// binDirs are the directories whose contents end up on the runtime
// search path of wrapped programs.
var binDirs = []string{"bin", "sbin"}

// OutputValidate checks the produced tree against the layout
// conventions. A missing output is fatal; an output with no
// executables in the conventional locations only warns.
type OutputValidate struct {
	common
}

func (o *OutputValidate) Validate(ctx context.Context, req *data.BuildRequest) error {
	ui := GetUI(ctx)

	if _, err := os.Stat(req.OutPath); err != nil {
		ui.Error("Build of '%s' did not copy outputs to '$out'.", req.Name)
		for _, h := range outputHints {
			ui.Hint(h)
		}

		return errors.Wrapf(ErrMissingOutput, "output: %s", req.OutPath)
	}

	var found bool

	for _, d := range binDirs {
		entries, err := os.ReadDir(filepath.Join(req.OutPath, d))
		if err != nil {
			continue
		}

		for _, ent := range entries {
			fi, err := ent.Info()
			if err != nil {
				continue
			}

			if isExecutable(fi) {
				found = true
				break
			}
		}
	}

	if found {
		return nil
	}

	ui.Warn("No executables found under bin or sbin of '%s'.", req.Name)
	ui.Hint("only files directly under $out/bin and $out/sbin are placed on PATH")

	strays := o.findStrays(req.OutPath)
	if len(strays) > 0 {
		ui.Hint("executables were found elsewhere in the output:")
		for _, s := range strays {
			ui.Hint("  %s", s)
		}
	}

	return nil
}

func isExecutable(fi os.FileInfo) bool {
	return fi.Mode().IsRegular() && fi.Mode().Perm()&0111 != 0
}

// findStrays scans the whole output tree, excluding the conventional
// bin dirs, for executables worth pointing the user at.
func (o *OutputValidate) findStrays(out string) []string {
	var strays []string

	filepath.Walk(out, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if fi.IsDir() {
			rel, rerr := filepath.Rel(out, path)
			if rerr == nil {
				for _, d := range binDirs {
					if rel == d {
						return filepath.SkipDir
					}
				}
			}

			return nil
		}

		if isExecutable(fi) {
			if rel, rerr := filepath.Rel(out, path); rerr == nil {
				strays = append(strays, rel)
			}
		}

		return nil
	})

	return strays
}
