package data

import "github.com/pkg/errors"

var (
	ErrCacheWithoutScript  = errors.New("a build cache requires a build script")
	ErrSourceWithoutScript = errors.New("a source archive requires a build script")
	ErrNoName              = errors.New("build request missing a package name")
	ErrNoOutPath           = errors.New("build request missing an output path")
)

// BuildRequest describes a single invocation of the build pipeline.
// Reference fields are store paths owned by the surrounding system;
// they are read-only to this code.
type BuildRequest struct {
	// Primary build environment, outer activation layer.
	EnvRef string `json:"env-ref"`

	// Wrapper environment, inner activation layer. Its tools take
	// precedence on PATH and its activate entry point is what
	// generated launchers re-invoke.
	WrapperEnvRef string `json:"wrapper-env-ref"`

	Name string `json:"name"`

	// Static tree copied verbatim when no build script is given.
	InstallPrefix string `json:"install-prefix,omitempty"`

	// Source archive extracted into the working dir in script mode.
	// May be a local path or an http(s) URL.
	SourceArchive string `json:"source-archive,omitempty"`

	// Script executed inside the layered activations.
	BuildScript string `json:"build-script,omitempty"`

	// Additional store references whose bin dirs join the build PATH.
	ExtraDeps []string `json:"extra-deps,omitempty"`

	// Prior cache archive, merged additively under the source tree.
	BuildCache string `json:"build-cache,omitempty"`

	// Where the build output tree is produced.
	OutPath string `json:"out-path"`

	// Where the new cache archive is written. Setting this requests
	// cache emission and switches on failure absorption.
	CacheOut string `json:"cache-out,omitempty"`
}

// Validate enforces the fail-fast preconditions. It is called before
// any filesystem work happens.
func (r *BuildRequest) Validate() error {
	if r.Name == "" {
		return ErrNoName
	}

	if r.OutPath == "" {
		return ErrNoOutPath
	}

	if r.BuildScript == "" {
		if r.BuildCache != "" || r.CacheOut != "" {
			return ErrCacheWithoutScript
		}

		if r.SourceArchive != "" {
			return ErrSourceWithoutScript
		}
	}

	return nil
}

// CacheRequested reports whether the invocation should emit a cache
// archive, which also downgrades a build-script failure to a captured
// condition.
func (r *BuildRequest) CacheRequested() bool {
	return r.CacheOut != ""
}

type PlanKind int

const (
	// Copy a static install prefix into the output.
	PlanCopy PlanKind = iota

	// Run the build script, propagate failure.
	PlanScript

	// Run the build script, absorb failure, emit a cache archive.
	PlanScriptCached
)

func (k PlanKind) String() string {
	switch k {
	case PlanCopy:
		return "copy"
	case PlanScript:
		return "script"
	case PlanScriptCached:
		return "script+cache"
	default:
		return "unknown"
	}
}

// BuildPlan is the typed strategy selected from a request. The whole
// pipeline is a linear sequence over the plan; the kind is the single
// branch point.
type BuildPlan struct {
	Kind    PlanKind
	Request *BuildRequest
}

type BuildStatus int

const (
	BuildSucceeded BuildStatus = iota

	// The script failed but a cache was requested: the output was
	// replaced by a failure marker and the cache still written.
	// Callers must not treat the output path as usable.
	BuildFailedCachePreserved
)

func (s BuildStatus) String() string {
	switch s {
	case BuildSucceeded:
		return "succeeded"
	case BuildFailedCachePreserved:
		return "failed, cache preserved"
	default:
		return "unknown"
	}
}

type BuildResult struct {
	Status    BuildStatus
	OutPath   string
	CachePath string
}
