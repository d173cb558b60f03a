package ops

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lab47.dev/strata/pkg/data"
)

func TestOutputValidate(t *testing.T) {
	t.Run("missing output is fatal with remediation hints", func(t *testing.T) {
		var diag bytes.Buffer
		ctx := WithUI(context.Background(), &UI{Out: &diag})

		var ov OutputValidate
		req := &data.BuildRequest{
			Name:    "hello",
			OutPath: filepath.Join(t.TempDir(), "nope"),
		}

		err := ov.Validate(ctx, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingOutput))

		assert.Contains(t, diag.String(), "did not copy outputs to '$out'")
		assert.Contains(t, diag.String(), "make install PREFIX=$out")
	})

	t.Run("an executable under bin passes quietly", func(t *testing.T) {
		var diag bytes.Buffer
		ctx := WithUI(context.Background(), &UI{Out: &diag})

		out := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(out, "bin"), 0755))
		require.NoError(t, ioutil.WriteFile(filepath.Join(out, "bin", "hello"), []byte("#!/bin/sh\n"), 0755))

		var ov OutputValidate
		req := &data.BuildRequest{Name: "hello", OutPath: out}

		require.NoError(t, ov.Validate(ctx, req))
		assert.Empty(t, diag.String())
	})

	t.Run("no executables warns and lists strays without failing", func(t *testing.T) {
		var diag bytes.Buffer
		ctx := WithUI(context.Background(), &UI{Out: &diag})

		out := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(out, "bin"), 0755))
		require.NoError(t, ioutil.WriteFile(filepath.Join(out, "bin", "README"), []byte("docs\n"), 0644))
		require.NoError(t, os.MkdirAll(filepath.Join(out, "libexec"), 0755))
		require.NoError(t, ioutil.WriteFile(filepath.Join(out, "libexec", "helper"), []byte("#!/bin/sh\n"), 0755))

		var ov OutputValidate
		req := &data.BuildRequest{Name: "hello", OutPath: out}

		require.NoError(t, ov.Validate(ctx, req))

		assert.Contains(t, diag.String(), "No executables found under bin or sbin")
		assert.Contains(t, diag.String(), "libexec/helper")
	})
}
