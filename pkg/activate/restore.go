package activate

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const (
	varOrigDotdir = "STRATA_ORIG_ZDOTDIR"
	varDotdir     = "ZDOTDIR"
	varInitScript = "STRATA_INIT_SCRIPT"
	userLoginFile = ".login"
)

// Restorer re-sources login files during activation. Each external
// file is sourced in a subshell whose resulting environment is merged
// back, and the guarded variable set is restored after every merge, so
// nested re-entrant activations cannot clobber activation state.
type Restorer struct {
	L hclog.Logger

	// Shell used for sourcing; defaults to /bin/sh.
	Shell string

	// System-wide login file, sourced first.
	SystemLoginFile string

	// User home, for resolving the user login file when no original
	// dotfile dir was recorded. Defaults to $HOME of env.
	HomeDir string

	// Diagnostic stream for the sourced files' own output.
	Err io.Writer
}

func (r *Restorer) logger() hclog.Logger {
	if r.L == nil {
		r.L = hclog.L()
	}

	return r.L
}

func (r *Restorer) shell() string {
	if r.Shell != "" {
		return r.Shell
	}

	return "/bin/sh"
}

// Restore sources the system login file, then the user login file,
// restoring the guarded snapshot after each, and finally sources the
// injected init script when one is configured. It returns the merged
// environment; env itself is not modified.
func (r *Restorer) Restore(ctx context.Context, env map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(env))
	for k, v := range env {
		merged[k] = v
	}

	snap := Capture(merged)

	if r.SystemLoginFile != "" {
		if _, err := os.Stat(r.SystemLoginFile); err == nil {
			err := r.sourceWithRedirect(ctx, merged, snap, r.SystemLoginFile)
			if err != nil {
				return nil, err
			}

			snap.Restore(merged)
		}
	}

	if user := r.userLoginFile(snap, merged); user != "" {
		if _, err := os.Stat(user); err == nil {
			err := r.sourceWithRedirect(ctx, merged, snap, user)
			if err != nil {
				return nil, err
			}

			snap.Restore(merged)
		}
	}

	if init, ok := snap.Get(varInitScript); ok && init != "" {
		err := r.source(ctx, merged, init)
		if err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// userLoginFile resolves the user login file relative to the original
// dotfile dir when one was recorded, the home dir otherwise.
func (r *Restorer) userLoginFile(snap *Snapshot, env map[string]string) string {
	dir, ok := snap.Get(varOrigDotdir)
	if !ok || dir == "" {
		dir = r.HomeDir
	}

	if dir == "" {
		dir = env["HOME"]
	}

	if dir == "" {
		return ""
	}

	return filepath.Join(dir, userLoginFile)
}

// sourceWithRedirect sources file with the dotfile dir temporarily
// redirected to the recorded original, or cleared when none was
// recorded. The redirect lasts for that single sourcing call only.
func (r *Restorer) sourceWithRedirect(ctx context.Context, env map[string]string, snap *Snapshot, file string) error {
	saved, hadDotdir := env[varDotdir]

	if orig, ok := snap.Get(varOrigDotdir); ok && orig != "" {
		env[varDotdir] = orig
	} else {
		delete(env, varDotdir)
	}

	err := r.source(ctx, env, file)

	if hadDotdir {
		env[varDotdir] = saved
	} else {
		delete(env, varDotdir)
	}

	return err
}

// source runs the file through the shell and merges the subshell's
// resulting environment into env. Failures inside the sourced file
// propagate as the shell's exit status.
func (r *Restorer) source(ctx context.Context, env map[string]string, file string) error {
	r.logger().Debug("sourcing login file", "file", file)

	// The sourced file's own stdout is diverted to the diagnostic
	// stream so it cannot corrupt the environment dump.
	cmd := exec.CommandContext(ctx, r.shell(), "-c", `. "$0" >&2 && exec env -0`, file)
	cmd.Env = Environ(env)

	if r.Err != nil {
		cmd.Stderr = r.Err
	} else {
		cmd.Stderr = os.Stderr
	}

	out, err := cmd.Output()
	if err != nil {
		return errors.Wrapf(err, "sourcing %s", file)
	}

	for k, v := range parseNullSeparated(out) {
		env[k] = v
	}

	return nil
}

func parseNullSeparated(out []byte) map[string]string {
	env := make(map[string]string)

	for _, kv := range bytes.Split(out, []byte{0}) {
		if len(kv) == 0 {
			continue
		}

		eq := bytes.IndexByte(kv, '=')
		if eq == -1 {
			continue
		}

		env[string(kv[:eq])] = string(kv[eq+1:])
	}

	return env
}

// Environ renders an environment map in sorted KEY=value form.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))

	for k, v := range env {
		out = append(out, k+"="+v)
	}

	sort.Strings(out)

	return out
}

// EnvironMap parses os.Environ style KEY=value pairs.
func EnvironMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		eq := strings.IndexByte(kv, '=')
		if eq == -1 {
			continue
		}

		env[kv[:eq]] = kv[eq+1:]
	}

	return env
}
