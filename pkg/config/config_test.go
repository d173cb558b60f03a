package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("reads the file named by STRATA_CONFIG and fills defaults", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")
		require.NoError(t, ioutil.WriteFile(path, []byte(`{
			"build-dir": "`+filepath.Join(root, "build")+`",
			"state-dir": "`+filepath.Join(root, "state")+`",
			"runtime-dir": "`+filepath.Join(root, "run")+`"
		}`), 0644))

		os.Setenv("STRATA_CONFIG", path)
		defer os.Unsetenv("STRATA_CONFIG")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(root, "build"), cfg.BuildDir)
		assert.Equal(t, DefaultStoreDir, cfg.StoreDir)
		assert.Equal(t, DefaultSystemLoginFile, cfg.SystemLoginFile)

		// configured dirs get created
		fi, err := os.Stat(cfg.RuntimeDir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())
	})

	t.Run("environment variables override file values", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")
		require.NoError(t, ioutil.WriteFile(path, []byte(`{
			"build-dir": "`+filepath.Join(root, "build")+`",
			"state-dir": "`+filepath.Join(root, "state")+`",
			"runtime-dir": "`+filepath.Join(root, "run")+`"
		}`), 0644))

		override := filepath.Join(root, "other-build")

		os.Setenv("STRATA_CONFIG", path)
		os.Setenv("STRATA_BUILD_DIR", override)
		defer os.Unsetenv("STRATA_CONFIG")
		defer os.Unsetenv("STRATA_BUILD_DIR")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, override, cfg.BuildDir)
	})

	t.Run("STRATA_STORE_DIR must name an existing directory", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")
		require.NoError(t, ioutil.WriteFile(path, []byte(`{
			"build-dir": "`+filepath.Join(root, "build")+`",
			"state-dir": "`+filepath.Join(root, "state")+`",
			"runtime-dir": "`+filepath.Join(root, "run")+`"
		}`), 0644))

		os.Setenv("STRATA_CONFIG", path)
		os.Setenv("STRATA_STORE_DIR", filepath.Join(root, "missing"))
		defer os.Unsetenv("STRATA_CONFIG")
		defer os.Unsetenv("STRATA_STORE_DIR")

		_, err := LoadConfig()
		assert.Error(t, err)
	})
}
