package risk

import "errors"

var (
	// ErrInsufficientData means fewer return observations than the
	// correlation window needs. Degrade: no correlation alerts this tick,
	// drawdown-based leveling still applies.
	ErrInsufficientData = errors.New("risk: insufficient return observations")

	// ErrStateUnavailable means prior risk state could not be loaded. The
	// engine must not assume level 0; callers hold at emergency until an
	// operator confirms.
	ErrStateUnavailable = errors.New("risk: prior state unavailable")

	// ErrNotInRecovery is returned by force-resume outside recovery mode.
	ErrNotInRecovery = errors.New("risk: not in recovery mode")

	// ErrStaleAssessment rejects a commit whose snapshot is older than the
	// last committed one (last-writer-by-timestamp, not by completion).
	ErrStaleAssessment = errors.New("risk: assessment older than committed state")
)
