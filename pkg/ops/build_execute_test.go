package ops

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lab47.dev/strata/pkg/data"
)

func testBuildEnv(t *testing.T) *BuildEnv {
	root := t.TempDir()

	env := &BuildEnv{
		StoreDir:   filepath.Join(root, "store"),
		BuildDir:   filepath.Join(root, "build"),
		StateDir:   filepath.Join(root, "state"),
		RuntimeDir: filepath.Join(root, "run"),
	}

	for _, d := range []string{env.StoreDir, env.BuildDir, env.StateDir, env.RuntimeDir} {
		require.NoError(t, os.MkdirAll(d, 0755))
	}

	return env
}

func testRequest(t *testing.T, env *BuildEnv) *data.BuildRequest {
	root := t.TempDir()

	req := &data.BuildRequest{
		Name:          "hello",
		EnvRef:        filepath.Join(root, "env"),
		WrapperEnvRef: filepath.Join(root, "wrapper"),
		OutPath:       filepath.Join(env.StoreDir, "hello"),
	}

	require.NoError(t, os.MkdirAll(filepath.Join(req.EnvRef, "bin"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(req.WrapperEnvRef, "bin"), 0755))

	return req
}

func writeScript(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "build.sh")
	require.NoError(t, ioutil.WriteFile(path, []byte(body), 0755))
	return path
}

func needBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestBuildExecute(t *testing.T) {
	ctx := WithUI(context.Background(), &UI{Out: ioutil.Discard})

	t.Run("copy mode installs and wraps the prefix", func(t *testing.T) {
		env := testBuildEnv(t)
		req := testRequest(t, env)

		prefix := filepath.Join(t.TempDir(), "prefix")
		require.NoError(t, os.MkdirAll(filepath.Join(prefix, "bin"), 0755))
		require.NoError(t, ioutil.WriteFile(filepath.Join(prefix, "bin", "hello"),
			[]byte("#!/bin/sh\necho hi\n"), 0755))

		req.InstallPrefix = prefix

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, data.BuildSucceeded, res.Status)
		assert.Empty(t, res.CachePath)

		got, err := ioutil.ReadFile(filepath.Join(req.OutPath, "bin", ".hello-wrapped"))
		require.NoError(t, err)
		assert.Equal(t, "#!/bin/sh\necho hi\n", string(got))

		launcher, err := ioutil.ReadFile(filepath.Join(req.OutPath, "bin", "hello"))
		require.NoError(t, err)
		assert.Contains(t, string(launcher), "--quiet --no-profile")
	})

	t.Run("script mode builds into $out and wraps the result", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.BuildScript = writeScript(t, `
mkdir -p "$out/bin"
printf '#!/bin/sh\necho "$name"\n' > "$out/bin/hello"
chmod +x "$out/bin/hello"
`)

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, data.BuildSucceeded, res.Status)

		_, err = os.Stat(filepath.Join(req.OutPath, "bin", ".hello-wrapped"))
		assert.NoError(t, err)

		// the working directory is cleaned up on success
		_, err = os.Stat(filepath.Join(env.BuildDir, "build-hello"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("script mode extracts a source archive into the working dir", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.SourceArchive = writeSourceArchive(t, map[string]string{
			"hello.txt": "from the source\n",
		})
		req.BuildScript = writeScript(t, `
mkdir -p "$out"
cp hello.txt "$out/hello.txt"
`)

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, data.BuildSucceeded, res.Status)

		got, err := ioutil.ReadFile(filepath.Join(req.OutPath, "hello.txt"))
		require.NoError(t, err)
		assert.Equal(t, "from the source\n", string(got))
	})

	t.Run("script mode accepts a plain directory source", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		src := t.TempDir()
		require.NoError(t, ioutil.WriteFile(filepath.Join(src, "hello.txt"),
			[]byte("from the tree\n"), 0444))

		stamp := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, os.Chtimes(filepath.Join(src, "hello.txt"), stamp, stamp))

		req.SourceArchive = src
		req.BuildScript = writeScript(t, `
mkdir -p "$out"
cp -p hello.txt "$out/hello.txt"
`)

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, data.BuildSucceeded, res.Status)

		got, err := ioutil.ReadFile(filepath.Join(req.OutPath, "hello.txt"))
		require.NoError(t, err)
		assert.Equal(t, "from the tree\n", string(got))
	})

	t.Run("a failing script without a cache fails the build", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.BuildScript = writeScript(t, "exit 3\n")

		be := &BuildExecute{Env: env}

		_, err := be.Execute(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrScriptFailed))
	})

	t.Run("infrastructure failures are not script failures", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)
		req.BuildScript = writeScript(t, "true\n")

		sb := ScriptBuild{Env: env}

		// a working dir that does not exist fails before the script runs
		err := sb.runScript(context.Background(), req, filepath.Join(t.TempDir(), "missing"))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrScriptFailed))
	})

	t.Run("a failing script with a cache is absorbed and still packs", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.CacheOut = filepath.Join(t.TempDir(), "hello.cache.tar")
		req.BuildScript = writeScript(t, `
echo partial > progress.txt
mkdir -p "$out"
echo junk > "$out/junk"
exit 1
`)

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, data.BuildFailedCachePreserved, res.Status)
		assert.Equal(t, req.CacheOut, res.CachePath)

		// the partial output is withheld, replaced by the marker
		got, err := ioutil.ReadFile(req.OutPath)
		require.NoError(t, err)
		assert.Equal(t, FailureMarker, string(got))

		// the cache still reflects what the script got done
		names := tarNames(t, req.CacheOut)
		assert.Contains(t, names, "progress.txt")
	})

	t.Run("a prior cache seeds the next working dir", func(t *testing.T) {
		needBash(t)

		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.CacheOut = filepath.Join(t.TempDir(), "hello.cache.tar")
		req.BuildScript = writeScript(t, `
if [ ! -e stamp ]; then
  echo fresh > stamp
fi
mkdir -p "$out"
cp stamp "$out/stamp"
`)

		be := &BuildExecute{Env: env}

		res, err := be.Execute(ctx, req)
		require.NoError(t, err)
		require.Equal(t, data.BuildSucceeded, res.Status)

		got, err := ioutil.ReadFile(filepath.Join(req.OutPath, "stamp"))
		require.NoError(t, err)
		require.Equal(t, "fresh\n", string(got))

		// second run feeds the first run's cache back in; the stamp
		// from the cache must win over re-creation
		req2 := testRequest(t, env)
		req2.BuildScript = req.BuildScript
		req2.BuildCache = req.CacheOut
		req2.CacheOut = filepath.Join(t.TempDir(), "hello2.cache.tar")
		req2.OutPath = filepath.Join(env.StoreDir, "hello2")

		res, err = be.Execute(ctx, req2)
		require.NoError(t, err)
		require.Equal(t, data.BuildSucceeded, res.Status)

		got, err = ioutil.ReadFile(filepath.Join(req2.OutPath, "stamp"))
		require.NoError(t, err)
		assert.Equal(t, "fresh\n", string(got), "the cached stamp survives the rebuild")
	})

	t.Run("rejects an invalid request before doing anything", func(t *testing.T) {
		env := testBuildEnv(t)
		req := testRequest(t, env)

		req.BuildCache = filepath.Join(t.TempDir(), "x.tar")

		be := &BuildExecute{Env: env}

		_, err := be.Execute(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, data.ErrCacheWithoutScript))
	})
}

func writeSourceArchive(t *testing.T, files map[string]string) string {
	path := filepath.Join(t.TempDir(), "src.tar.gz")

	f, err := os.Create(path)
	require.NoError(t, err)

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: time.Now(),
		}))

		_, err = tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	return path
}

func tarNames(t *testing.T, archive string) []string {
	f, err := os.Open(archive)
	require.NoError(t, err)

	defer f.Close()

	var names []string

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}

		names = append(names, hdr.Name)
	}

	return names
}

func TestSourceFileName(t *testing.T) {
	assert.Equal(t, "z.tar.gz", sourceFileName("https://example.com/x/y/z.tar.gz"))
	assert.Equal(t, "z.tar.gz", sourceFileName("https://example.com/z.tar.gz?sig=abc&x=1"))
	assert.Equal(t, "downloads", sourceFileName("https://example.com/downloads/"))
	assert.Equal(t, "source", sourceFileName("https://example.com"))
	assert.Equal(t, "source", sourceFileName("https://example.com/"))
}

func TestScriptEnviron(t *testing.T) {
	env := testBuildEnv(t)

	sb := ScriptBuild{Env: env}

	req := &data.BuildRequest{
		Name:          "hello",
		EnvRef:        "/store/env",
		WrapperEnvRef: "/store/wrapper",
		ExtraDeps:     []string{"/store/depA", "/store/depB"},
		OutPath:       "/store/out",
	}

	environ := sb.scriptEnviron(req)

	var path string
	for _, kv := range environ {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}

	require.NotEmpty(t, path)

	want := strings.Join([]string{
		"/store/wrapper/bin",
		"/store/env/bin",
		"/store/env/sbin",
		"/store/depA/bin",
		"/store/depB/bin",
		"/bin",
		"/usr/bin",
	}, ":")

	assert.Equal(t, want, path, "wrapper tools shadow the primary environment")

	assert.Contains(t, environ, "out=/store/out")
	assert.Contains(t, environ, "name=hello")
	assert.Contains(t, environ, "HOME=/nonexistant")
	assert.Contains(t, environ, "STRATA_ENV=/store/env")
	assert.Contains(t, environ, "STRATA_BUILD_WRAPPER=/store/wrapper")
	assert.Contains(t, environ, "STRATA_ENV_STATE_DIR="+env.StateDir)
}
