package ops

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"lab47.dev/strata/pkg/cleanhttp"
	"lab47.dev/strata/pkg/data"
	"lab47.dev/strata/pkg/fileutils"
	"lab47.dev/strata/pkg/sumfile"
)

// ScriptBuild implements the execute build mode: the source archive is
// extracted into a fresh working subdirectory, a prior cache is merged
// in additively, and the build script runs inside two layered
// activations, the wrapper environment being the inner one.
type ScriptBuild struct {
	common

	Env *BuildEnv

	// Set after Run: the working subdirectory the script ran in,
	// which is also what a requested cache archives.
	WorkDir string
}

func (s *ScriptBuild) Run(ctx context.Context, req *data.BuildRequest) error {
	topDir := filepath.Join(s.Env.BuildDir, "build-"+req.Name)

	err := os.Mkdir(topDir, 0755)
	if err != nil {
		// Possible crash? Nuke the build dir.
		if !os.IsExist(err) {
			return track(err)
		}

		os.RemoveAll(topDir)
		err = os.Mkdir(topDir, 0755)
		if err != nil {
			return track(err)
		}
	}

	// The script runs in a subdirectory, never in topDir itself,
	// so stray droppings there don't leak into the cache.
	workDir := filepath.Join(topDir, "work")

	if err := os.Mkdir(workDir, 0755); err != nil {
		return track(err)
	}

	s.WorkDir = workDir

	src := req.SourceArchive

	if src != "" && isURL(src) {
		src, err = s.fetchSource(ctx, topDir, req.SourceArchive)
		if err != nil {
			return track(err)
		}
	}

	if err := s.printChecksums(ctx, topDir, req, src); err != nil {
		return track(err)
	}

	if src != "" {
		if err := s.stageSource(ctx, src, workDir); err != nil {
			return track(err)
		}
	}

	if req.BuildCache != "" {
		var cu CacheUnpack
		cu.SetLogger(s.L())

		if err := cu.Unpack(req.BuildCache, workDir); err != nil {
			return track(err)
		}
	}

	return s.runScript(ctx, req, workDir)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// sourceFileName derives a local file name from a source URL. Query
// strings are not part of the name, and a URL without a usable last
// path segment falls back to a fixed name.
func sourceFileName(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "source"
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "source"
	}

	return name
}

func (s *ScriptBuild) fetchSource(ctx context.Context, topDir, rawurl string) (string, error) {
	tgt := filepath.Join(topDir, sourceFileName(rawurl))

	s.L().Debug("fetching source archive", "url", rawurl, "into", tgt)

	resp, err := cleanhttp.GetContext(ctx, rawurl)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("fetching %s: %s", rawurl, resp.Status)
	}

	f, err := os.Create(tgt)
	if err != nil {
		return "", err
	}

	defer f.Close()

	_, err = io.Copy(f, resp.Body)
	return tgt, err
}

// printChecksums emits the diagnostic preamble: a blake2 sum of every
// input artifact, also recorded in a sumfile next to the working dir.
func (s *ScriptBuild) printChecksums(ctx context.Context, topDir string, req *data.BuildRequest, src string) error {
	ui := GetUI(ctx)

	var sums sumfile.Sumfile

	inputs := []struct {
		label, path string
	}{
		{"source", src},
		{"build script", req.BuildScript},
		{"prior cache", req.BuildCache},
	}

	for _, in := range inputs {
		if in.path == "" {
			continue
		}

		// directory sources have no single artifact to sum
		if fi, err := os.Stat(in.path); err != nil || fi.IsDir() {
			continue
		}

		sum, err := hashFile(in.path)
		if err != nil {
			return err
		}

		ui.Checksum(in.label, in.path, "b2", sum)

		if _, err := sums.Add(in.path, "b2", sum); err != nil {
			return err
		}
	}

	f, err := os.Create(filepath.Join(topDir, "inputs.sum"))
	if err != nil {
		return err
	}

	defer f.Close()

	return sums.Save(f)
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	h, _ := blake2b.New256(nil)

	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// stageSource populates the working dir from the source, which is
// either an archive or a plain directory. Timestamps are preserved
// either way; losing them defeats incremental freshness checks.
func (s *ScriptBuild) stageSource(ctx context.Context, src, dir string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return s.extractSource(src, dir)
	}

	s.L().Debug("copying source directory", "path", src, "into", dir)

	inst := fileutils.Install{
		Ctx:  ctx,
		L:    s.L(),
		Path: src,
		Dest: dir,
		// the script gets to edit its own copy
		ModeOr: 0200,
	}

	return inst.Install()
}

func (s *ScriptBuild) extractSource(archive, dir string) error {
	var (
		kind string
		best int
	)

	for k := range getter.Decompressors {
		if strings.HasSuffix(archive, "."+k) && len(k) > best {
			kind = k
			best = len(k)
		}
	}

	dec, ok := getter.Decompressors[kind]
	if !ok {
		return errors.Wrapf(ErrUnknownArchive, "path: %s", archive)
	}

	s.L().Debug("extracting source archive", "path", archive, "into", dir)

	return dec.Decompress(dir, archive, true, 0)
}

func (s *ScriptBuild) runScript(ctx context.Context, req *data.BuildRequest, workDir string) error {
	environ := s.scriptEnviron(req)

	script, err := filepath.Abs(req.BuildScript)
	if err != nil {
		return track(err)
	}

	cmd := exec.CommandContext(ctx, "bash", "-e", script)
	cmd.Dir = workDir
	cmd.Env = environ

	s.L().Debug("running build script", "script", script, "dir", workDir, "env", environ)

	if err := s.streamOutput(req.Name, cmd); err != nil {
		// Only a non-zero exit is the script's own failure; anything
		// else (missing shell, bad working dir) is an infrastructure
		// error and must not be absorbed by cached mode.
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return errors.Wrapf(ErrScriptFailed, "script: %s: %s", req.BuildScript, err)
		}

		return track(err)
	}

	return nil
}

// scriptEnviron layers the two activations: the primary environment is
// the outer context, the wrapper environment the inner one, so wrapper
// tools win on PATH.
func (s *ScriptBuild) scriptEnviron(req *data.BuildRequest) []string {
	var search []string

	if req.WrapperEnvRef != "" {
		search = append(search, filepath.Join(req.WrapperEnvRef, "bin"))
	}

	search = append(search, filepath.Join(req.EnvRef, "bin"), filepath.Join(req.EnvRef, "sbin"))

	for _, dep := range req.ExtraDeps {
		search = append(search, filepath.Join(dep, "bin"))
	}

	search = append(search, "/bin", "/usr/bin")

	environ := []string{
		"HOME=/nonexistant",
		"PATH=" + strings.Join(search, ":"),
		"out=" + req.OutPath,
		"name=" + req.Name,
		"STRATA_ENV=" + req.EnvRef,
		"STRATA_BUILD_WRAPPER=" + req.WrapperEnvRef,
	}

	if s.Env.StateDir != "" {
		environ = append(environ, "STRATA_ENV_STATE_DIR="+s.Env.StateDir)
	}

	return environ
}

// streamOutput relays the child's stdout and stderr line by line,
// prefixed with the package name. The build's own streams stay
// separate from the pipeline diagnostics.
func (s *ScriptBuild) streamOutput(prefix string, cmd *exec.Cmd) error {
	or, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	er, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	relay := func(r io.Reader, w io.Writer) {
		defer wg.Done()

		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if len(line) > 0 {
				fmt.Fprintf(w, "%s │ %s\n", prefix, strings.TrimRight(line, " \n\t"))
			}

			if err != nil {
				return
			}
		}
	}

	wg.Add(2)
	go relay(or, os.Stdout)
	go relay(er, os.Stderr)

	if err := cmd.Start(); err != nil {
		return err
	}

	wg.Wait()

	return cmd.Wait()
}
