package frotixsync

import (
	"errors"
	"fmt"
	"time"
)

// ThrottledError reports that the remote API signaled rate exhaustion and how
// long it asked us to wait.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("frotix: throttled, retry after %s", e.RetryAfter)
}

// ErrStopRequested is returned by a phase when the cooperative stop flag was
// flipped between iterations. The orchestrator maps it to the paused status.
var ErrStopRequested = errors.New("stop requested")

// ErrSyncAlreadyRunning is returned when the run lock could not be obtained.
var ErrSyncAlreadyRunning = errors.New("sync is already running")
