package ops

// BuildEnv carries the directories a single build invocation operates
// in. The working dir created under BuildDir is exclusively owned by
// that invocation; isolation across simultaneous builds is the
// surrounding system's concern.
type BuildEnv struct {
	// Directory that holds rendered environment references.
	StoreDir string

	// Directory to create per-package working dirs in.
	BuildDir string

	// Directory packages may use for mutable state.
	StateDir string

	// Directory for sockets and other runtime artifacts, exported to
	// wrapped programs as STRATA_RUNTIME_DIR.
	RuntimeDir string

	// Retain the working dir after the build instead of removing it.
	KeepBuildDir bool
}
