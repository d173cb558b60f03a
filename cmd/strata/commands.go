package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"lab47.dev/strata/pkg/activate"
	"lab47.dev/strata/pkg/config"
	"lab47.dev/strata/pkg/data"
	"lab47.dev/strata/pkg/envdump"
	"lab47.dev/strata/pkg/gc"
	"lab47.dev/strata/pkg/humanize"
	"lab47.dev/strata/pkg/ops"
)

type buildOptions struct {
	EnvRef        string   `short:"e" long:"env" required:"true" description:"primary build environment reference"`
	WrapperEnvRef string   `short:"w" long:"wrapper-env" required:"true" description:"wrapper environment reference, layered innermost"`
	Name          string   `short:"n" long:"name" required:"true" description:"package name"`
	Out           string   `short:"o" long:"out" required:"true" description:"output path"`
	InstallPrefix string   `long:"install-prefix" description:"static tree to copy when no script is given"`
	Source        string   `long:"source" description:"source archive (path or URL)"`
	Script        string   `long:"script" description:"build script to execute"`
	Deps          []string `long:"dep" description:"extra dependency references for the build PATH"`
	Cache         string   `long:"cache" description:"prior cache archive to merge in"`
	CacheOut      string   `long:"cache-out" description:"write a new cache archive here"`
	KeepBuild     bool     `long:"keep-build" description:"retain the working directory"`
	Debug         bool     `long:"debug" description:"enable debug logging"`
}

func buildF(ctx context.Context, opts buildOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	req := &data.BuildRequest{
		EnvRef:        opts.EnvRef,
		WrapperEnvRef: opts.WrapperEnvRef,
		Name:          opts.Name,
		InstallPrefix: opts.InstallPrefix,
		SourceArchive: opts.Source,
		BuildScript:   opts.Script,
		ExtraDeps:     opts.Deps,
		BuildCache:    opts.Cache,
		OutPath:       opts.Out,
		CacheOut:      opts.CacheOut,
	}

	be := ops.BuildExecute{
		Env: &ops.BuildEnv{
			StoreDir:     cfg.StoreDir,
			BuildDir:     cfg.BuildDir,
			StateDir:     cfg.StateDir,
			RuntimeDir:   cfg.RuntimeDir,
			KeepBuildDir: opts.KeepBuild,
		},
	}
	be.SetLogger(logger(opts.Debug))

	ui := &ops.UI{Out: os.Stderr}

	res, err := be.Execute(ops.WithUI(ctx, ui), req)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Build of %s: %s\n", req.Name, res.Status)

	return nil
}

type reactivateOptions struct {
	Shell  string `long:"shell" description:"shell used for sourcing login files"`
	System string `long:"system-login" description:"override the system login file"`
	Debug  bool   `long:"debug" description:"enable debug logging"`
}

func reactivateF(ctx context.Context, opts reactivateOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	system := cfg.SystemLoginFile
	if opts.System != "" {
		system = opts.System
	}

	home, _ := os.UserHomeDir()

	r := activate.Restorer{
		L:               logger(opts.Debug),
		Shell:           opts.Shell,
		SystemLoginFile: system,
		HomeDir:         home,
		Err:             os.Stderr,
	}

	merged, err := r.Restore(ctx, activate.EnvironMap(os.Environ()))
	if err != nil {
		return err
	}

	// The shell hook evals this dump to adopt the merged environment.
	fmt.Println(envdump.Dump(merged))

	return nil
}

type wrapOptions struct {
	EnvRef        string `short:"e" long:"env" required:"true" description:"primary build environment reference"`
	WrapperEnvRef string `short:"w" long:"wrapper-env" required:"true" description:"wrapper environment reference"`
	Name          string `short:"n" long:"name" required:"true" description:"package name"`
	Out           string `short:"o" long:"out" required:"true" description:"output path to rewrap"`
	Debug         bool   `long:"debug" description:"enable debug logging"`
}

func wrapF(ctx context.Context, opts wrapOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	req := &data.BuildRequest{
		EnvRef:        opts.EnvRef,
		WrapperEnvRef: opts.WrapperEnvRef,
		Name:          opts.Name,
		OutPath:       opts.Out,
	}

	benv := &ops.BuildEnv{
		StoreDir:   cfg.StoreDir,
		BuildDir:   cfg.BuildDir,
		StateDir:   cfg.StateDir,
		RuntimeDir: cfg.RuntimeDir,
	}

	ui := &ops.UI{Out: os.Stderr}
	ctx = ops.WithUI(ctx, ui)

	var ov ops.OutputValidate
	ov.SetLogger(logger(opts.Debug))

	if err := ov.Validate(ctx, req); err != nil {
		return err
	}

	ps := ops.PatchShebangs{
		WorkDir: cfg.BuildDir,
		EnvRefs: []string{req.WrapperEnvRef, req.EnvRef},
	}
	ps.SetLogger(logger(opts.Debug))

	if err := ps.Patch(req.OutPath); err != nil {
		return err
	}

	bw := ops.BinWrap{Env: benv}
	bw.SetLogger(logger(opts.Debug))

	return bw.Wrap(req)
}

type packCacheOptions struct {
	Dir   string `short:"d" long:"dir" required:"true" description:"working directory to snapshot"`
	Out   string `short:"o" long:"out" required:"true" description:"cache archive to write"`
	Debug bool   `long:"debug" description:"enable debug logging"`
}

func packCacheF(ctx context.Context, opts packCacheOptions) error {
	f, err := os.Create(opts.Out)
	if err != nil {
		return err
	}

	var cp ops.CachePack
	cp.SetLogger(logger(opts.Debug))

	err = cp.Pack(ctx, opts.Dir, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Cache written to %s (%d bytes)\n", opts.Out, cp.Size)

	return nil
}

type cleanOptions struct {
	Age   time.Duration `long:"age" default:"24h" description:"only remove leftovers older than this"`
	Dry   bool          `long:"dry-run" description:"list what would be removed without removing it"`
	Debug bool          `long:"debug" description:"enable debug logging"`
}

func cleanF(ctx context.Context, opts cleanOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	c := gc.NewCleaner(cfg.BuildDir)

	if opts.Dry {
		stale, err := c.Stale(opts.Age)
		if err != nil {
			return err
		}

		for _, name := range stale {
			fmt.Println(name)
		}

		return nil
	}

	sr, err := c.Sweep(ctx, opts.Age)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Removed %d leftovers, recovered %s\n",
		len(sr.Removed), humanize.String(sr.BytesRecovered))

	return nil
}
