package search

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// State is a SearchSession lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStaging
	StateRanking
	StateCollecting
	StateCleanup
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStaging:
		return "STAGING"
	case StateRanking:
		return "RANKING"
	case StateCollecting:
		return "COLLECTING"
	case StateCleanup:
		return "CLEANUP"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SlotMode selects how a session hands its query vector to the store.
type SlotMode string

const (
	// SlotBound passes the vector as a query parameter; staging and cleanup are no-ops.
	SlotBound SlotMode = "bound"
	// SlotSession stages the vector in a slot row private to the session.
	SlotSession SlotMode = "session"
	// SlotExclusive stages the vector in one shared slot row, one session at a time.
	SlotExclusive SlotMode = "exclusive"
)

// ParseSlotMode validates a configured slot mode. Empty means SlotBound.
func ParseSlotMode(s string) (SlotMode, error) {
	switch m := SlotMode(s); m {
	case "":
		return SlotBound, nil
	case SlotBound, SlotSession, SlotExclusive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown slot mode %q", s)
	}
}

const exclusiveSlotID = "exclusive"

// Session runs one query through staging, ranking, collection and cleanup.
// The slot is released on every exit path. A Session is single use.
type Session struct {
	ID string

	mode      SlotMode
	slotID    string
	store     storage.VectorStore
	timeout   time.Duration
	exclusive chan struct{}
	logger    *zap.Logger
	onCleanup func(*CleanupError)

	mu         sync.Mutex
	state      State
	history    []State
	cleanupErr *CleanupError
}

func newSession(store storage.VectorStore, mode SlotMode, timeout time.Duration, exclusive chan struct{}, logger *zap.Logger, onCleanup func(*CleanupError)) *Session {
	id := uuid.New().String()
	s := &Session{
		ID:        id,
		mode:      mode,
		store:     store,
		timeout:   timeout,
		exclusive: exclusive,
		logger:    logger.With(zap.String("session", id)),
		onCleanup: onCleanup,
		state:     StateIdle,
		history:   []State{StateIdle},
	}
	switch mode {
	case SlotSession:
		s.slotID = id
	case SlotExclusive:
		s.slotID = exclusiveSlotID
	}
	return s
}

// Run ranks the corpus against query and returns at most k results in ranking order.
func (s *Session) Run(ctx context.Context, query []float32, k int) ([]*models.RankedResult, error) {
	s.mu.Lock()
	used := s.state != StateIdle
	s.mu.Unlock()
	if used {
		return nil, ErrSessionUsed
	}
	if k < 1 {
		s.setState(StateFailed)
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, k)
	}
	if err := s.acquire(ctx); err != nil {
		s.setState(StateFailed)
		return nil, &StagingError{SessionID: s.ID, Err: err}
	}

	s.setState(StateStaging)
	ok := false
	defer func() {
		s.setState(StateCleanup)
		s.release(ctx)
		if ok {
			s.setState(StateDone)
		} else {
			s.setState(StateFailed)
		}
	}()

	if err := s.stage(ctx, query); err != nil {
		return nil, &StagingError{SessionID: s.ID, Err: err}
	}

	s.setState(StateRanking)
	rows, err := s.rank(ctx, query, k)
	if err != nil {
		return nil, &RankingError{SessionID: s.ID, Err: err}
	}

	s.setState(StateCollecting)
	results, err := collect(rows, k)
	if err != nil {
		return nil, &RankingError{SessionID: s.ID, Err: err}
	}
	ok = true
	return results, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns every state the session has entered, in order.
func (s *Session) History() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// CleanupErr returns the cleanup failure, if any.
func (s *Session) CleanupErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupErr == nil {
		return nil
	}
	return s.cleanupErr
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.history = append(s.history, st)
	s.mu.Unlock()
	s.logger.Debug("search session state", zap.Stringer("state", st))
}

func (s *Session) acquire(ctx context.Context) error {
	if s.mode != SlotExclusive {
		return nil
	}
	select {
	case s.exclusive <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) stage(ctx context.Context, query []float32) error {
	if s.mode == SlotBound {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.StageQuery(sctx, s.slotID, query)
}

func (s *Session) rank(ctx context.Context, query []float32, k int) ([]*models.RankedResult, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.mode == SlotBound {
		return s.store.Rank(rctx, query, k)
	}
	return s.store.RankStaged(rctx, s.slotID, k)
}

// release deletes the slot with a context detached from the caller's cancellation,
// then frees the exclusive lock.
func (s *Session) release(ctx context.Context) {
	if s.mode == SlotExclusive {
		defer func() { <-s.exclusive }()
	}
	if s.mode == SlotBound {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.store.ReleaseSlot(cctx, s.slotID); err != nil {
		cerr := &CleanupError{SessionID: s.ID, Err: err}
		s.mu.Lock()
		s.cleanupErr = cerr
		s.mu.Unlock()
		s.logger.Error("search slot cleanup failed", zap.String("slot", s.slotID), zap.Error(err))
		if s.onCleanup != nil {
			s.onCleanup(cerr)
		}
	}
}

// collect checks the ranker's output and assigns ranks.
func collect(rows []*models.RankedResult, k int) ([]*models.RankedResult, error) {
	if len(rows) > k {
		return nil, fmt.Errorf("ranker returned %d rows for limit %d", len(rows), k)
	}
	out := make([]*models.RankedResult, len(rows))
	for i, r := range rows {
		if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
			return nil, fmt.Errorf("row %q has non-finite score", r.Key)
		}
		if i > 0 && r.Score > rows[i-1].Score {
			return nil, fmt.Errorf("row %q scores above its predecessor", r.Key)
		}
		res := *r
		res.Rank = i + 1
		out[i] = &res
	}
	return out, nil
}
