package ops

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// PatchShebangs rewrites interpreter lines of scripts under bin/sbin
// so they resolve outside the build sandbox. An interpreter that
// points into the working directory, or that does not exist, is
// replaced by the same-named tool from the build environments.
// Binaries carry no shebang and are left alone.
type PatchShebangs struct {
	common

	// Interpreters below this prefix are sandbox-local.
	WorkDir string

	// Environment references searched for replacement interpreters,
	// in precedence order.
	EnvRefs []string
}

func (p *PatchShebangs) Patch(out string) error {
	for _, d := range binDirs {
		dir := filepath.Join(out, d)

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, ent := range entries {
			if !ent.Type().IsRegular() {
				continue
			}

			err := p.patchFile(filepath.Join(dir, ent.Name()))
			if err != nil {
				return track(err)
			}
		}
	}

	return nil
}

func (p *PatchShebangs) patchFile(path string) error {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	if !bytes.HasPrefix(content, []byte("#!")) {
		return nil
	}

	nl := bytes.IndexByte(content, '\n')
	if nl == -1 {
		nl = len(content)
	}

	line := strings.TrimSpace(string(content[2:nl]))
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	interp := fields[0]

	// "#!/usr/bin/env tool" resolves through PATH at run time; the
	// launcher wrapper sets that up already.
	if filepath.Base(interp) == "env" {
		return nil
	}

	if !p.needsPatch(interp) {
		return nil
	}

	repl := p.resolve(filepath.Base(interp))
	if repl == "" {
		p.L().Debug("no replacement interpreter found", "path", path, "interpreter", interp)
		return nil
	}

	fields[0] = repl

	var buf bytes.Buffer
	buf.WriteString("#!")
	buf.WriteString(strings.Join(fields, " "))
	buf.Write(content[nl:])

	fi, err := os.Stat(path)
	if err != nil {
		return err
	}

	p.L().Debug("patched shebang", "path", path, "old", interp, "new", repl)

	return ioutil.WriteFile(path, buf.Bytes(), fi.Mode().Perm())
}

func (p *PatchShebangs) needsPatch(interp string) bool {
	if p.WorkDir != "" && strings.HasPrefix(interp, p.WorkDir+string(filepath.Separator)) {
		return true
	}

	_, err := os.Stat(interp)
	return err != nil
}

func (p *PatchShebangs) resolve(base string) string {
	for _, ref := range p.EnvRefs {
		for _, d := range binDirs {
			cand := filepath.Join(ref, d, base)

			if fi, err := os.Stat(cand); err == nil && isExecutable(fi) {
				return cand
			}
		}
	}

	return ""
}
