package worker

import (
	"errors"

	"github.com/JakeFAU/notes-service/internal/metrics"
)

const (
	stageNavigate   = "navigate"
	stageTitle      = "title"
	stageBody       = "body"
	stageScreenshot = "screenshot"
	stageArchive    = "archive"
	stagePersist    = "persist"
)

// stageError tags a per-link failure with the step that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string {
	return e.stage + ": " + e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

func resultFor(err error) string {
	if err == nil {
		return metrics.ResultSucceeded
	}
	switch stageOf(err) {
	case stageArchive:
		return metrics.ResultArchiveFailed
	case stagePersist:
		return metrics.ResultPersistFailed
	default:
		return metrics.ResultFetchFailed
	}
}
