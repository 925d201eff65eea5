package usecase

import "errors"

var (
	// ErrRemoteRead means the remote sheet could not be read as a whole.
	// There is no reliable row-level fallback without a full read, so the
	// sync cycle aborts with nothing committed.
	ErrRemoteRead = errors.New("remote sheet read failed")

	// ErrCycleInProgress means another sync cycle holds the lock. Import and
	// export are never interleaved.
	ErrCycleInProgress = errors.New("sync cycle already in progress")

	// ErrNotConflicted means a resolution was requested for an instrument
	// that is not in the conflicted state.
	ErrNotConflicted = errors.New("instrument is not conflicted")
)
