package activate

// Variables guarded across nested activations. A login file sourced
// during activation can itself trigger a re-entrant activation that
// rewrites any of these; the snapshot taken before sourcing is
// restored verbatim afterwards.
var GuardedVars = []string{
	"STRATA_ACTIVATE_TRACE",
	"STRATA_ENV",
	"STRATA_ORIG_ZDOTDIR",
	"ZDOTDIR",
	"STRATA_ENV_STATE_DIR",
	"STRATA_INIT_SCRIPT",
	"STRATA_SAVE_PATH",
	"STRATA_SAVE_MANPATH",
	"STRATA_PROFILE_ONLY",
}

// Snapshot is an immutable capture of the guarded variable set.
// Restore may be applied any number of times, in any order relative to
// other snapshots of the same environment, with the same outcome.
type Snapshot struct {
	values  map[string]string
	present map[string]bool
}

// Capture records the guarded variables from env. Variables absent
// from env are recorded as absent and removed again on Restore.
func Capture(env map[string]string) *Snapshot {
	s := &Snapshot{
		values:  make(map[string]string, len(GuardedVars)),
		present: make(map[string]bool, len(GuardedVars)),
	}

	for _, name := range GuardedVars {
		v, ok := env[name]
		s.values[name] = v
		s.present[name] = ok
	}

	return s
}

// Restore re-applies every captured entry to env verbatim.
func (s *Snapshot) Restore(env map[string]string) {
	for _, name := range GuardedVars {
		if s.present[name] {
			env[name] = s.values[name]
		} else {
			delete(env, name)
		}
	}
}

// Get returns the captured value of a guarded variable.
func (s *Snapshot) Get(name string) (string, bool) {
	if !s.present[name] {
		return "", false
	}

	return s.values[name], true
}
