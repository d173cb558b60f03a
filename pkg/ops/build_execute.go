package ops

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"lab47.dev/strata/pkg/data"
	"lab47.dev/strata/pkg/humanize"
	"lab47.dev/strata/pkg/lockfile"
)

// FailureMarker is the sentinel written in place of the output when a
// cache-requested build fails.
const FailureMarker = "strata: build failed; output withheld, cache preserved\n"

// BuildExecute drives the whole pipeline over a planned request:
// execute the selected mode, validate the output, patch shebangs,
// wrap executables, and emit the cache archive when requested.
type BuildExecute struct {
	common

	Env *BuildEnv
}

func (e *BuildExecute) Execute(ctx context.Context, req *data.BuildRequest) (*data.BuildResult, error) {
	var pb PlanBuild
	pb.SetLogger(e.L())

	plan, err := pb.Plan(req)
	if err != nil {
		return nil, err
	}

	ui := GetUI(ctx)
	ui.RunBuild(req, plan.Kind)

	res := &data.BuildResult{Status: data.BuildSucceeded, OutPath: req.OutPath}

	switch plan.Kind {
	case data.PlanCopy:
		var ci CopyInstall
		ci.SetLogger(e.L())

		if err := ci.Install(ctx, req); err != nil {
			return nil, err
		}
	case data.PlanScript, data.PlanScriptCached:
		sb := ScriptBuild{Env: e.Env}
		sb.SetLogger(e.L())

		err := sb.Run(ctx, req)

		if sb.WorkDir != "" && !e.Env.KeepBuildDir {
			defer os.RemoveAll(filepath.Dir(sb.WorkDir))
		}

		if err != nil {
			if plan.Kind != data.PlanScriptCached || !errors.Is(err, ErrScriptFailed) {
				return nil, err
			}

			// Deliberate asymmetry: with a cache requested the
			// failure is captured, not propagated, so the cache
			// side-output survives the failed build.
			e.absorbFailure(ctx, req)
			res.Status = data.BuildFailedCachePreserved
		}

		if plan.Kind == data.PlanScriptCached {
			path, err := e.packCache(ctx, req, sb.WorkDir)
			if err != nil {
				return nil, err
			}

			res.CachePath = path
		}
	}

	if res.Status != data.BuildSucceeded {
		return res, nil
	}

	var ov OutputValidate
	ov.SetLogger(e.L())

	if err := ov.Validate(ctx, req); err != nil {
		return nil, err
	}

	ps := PatchShebangs{
		WorkDir: e.Env.BuildDir,
		EnvRefs: []string{req.WrapperEnvRef, req.EnvRef},
	}
	ps.SetLogger(e.L())

	if err := ps.Patch(req.OutPath); err != nil {
		return nil, err
	}

	bw := BinWrap{Env: e.Env}
	bw.SetLogger(e.L())

	if err := bw.Wrap(req); err != nil {
		return nil, err
	}

	return res, nil
}

func (e *BuildExecute) absorbFailure(ctx context.Context, req *data.BuildRequest) {
	ui := GetUI(ctx)

	os.RemoveAll(req.OutPath)

	err := ioutil.WriteFile(req.OutPath, []byte(FailureMarker), 0444)
	if err != nil {
		e.L().Error("error writing failure marker", "error", err)
	}

	ui.BuildAbsorbed(req)
}

// packCache replaces the cache output wholesale. The working dir is
// single-owner, but the cache artifact itself may be shared with a
// sibling invocation of the same package, so its replacement is
// guarded by a lock file.
func (e *BuildExecute) packCache(ctx context.Context, req *data.BuildRequest, workDir string) (string, error) {
	ui := GetUI(ctx)

	release, err := lockfile.Take(ctx, req.CacheOut+".lock", func() {
		e.L().Debug("waiting on cache lock", "path", req.CacheOut)
	})
	if err != nil {
		return "", track(err)
	}

	defer release()

	f, err := os.Create(req.CacheOut + ".tmp")
	if err != nil {
		return "", track(err)
	}

	var cp CachePack
	cp.SetLogger(e.L())

	err = cp.Pack(ctx, workDir, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(req.CacheOut + ".tmp")
		return "", err
	}

	if err := os.Rename(req.CacheOut+".tmp", req.CacheOut); err != nil {
		return "", track(err)
	}

	e.L().Debug("cache packed", "path", req.CacheOut, "size", humanize.String(cp.Size))

	ui.CacheWritten(req.CacheOut, cp.Size)

	return req.CacheOut, nil
}
