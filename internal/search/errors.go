package search

import (
	"errors"
	"fmt"
)

var (
	// ErrSearchFailed wraps every provider, staging or ranking failure returned by Engine.
	ErrSearchFailed = errors.New("search failed")
	// ErrInvalidLimit is returned for a result count below 1.
	ErrInvalidLimit = errors.New("limit must be at least 1")
	// ErrSessionUsed is returned when Run is called twice on one Session.
	ErrSessionUsed = errors.New("search session already run")
)

// StagingError reports a failure to place the query vector in the session's slot.
type StagingError struct {
	SessionID string
	Err       error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("session %s: staging failed: %v", e.SessionID, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// RankingError reports a failure while ranking or collecting results.
type RankingError struct {
	SessionID string
	Err       error
}

func (e *RankingError) Error() string {
	return fmt.Sprintf("session %s: ranking failed: %v", e.SessionID, e.Err)
}

func (e *RankingError) Unwrap() error { return e.Err }

// CleanupError reports a failure to release the session's slot. It never fails a search.
type CleanupError struct {
	SessionID string
	Err       error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("session %s: cleanup failed: %v", e.SessionID, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
