package search

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// faultStore wraps a VectorStore and injects failures.
type faultStore struct {
	storage.VectorStore
	stageErr   error
	rankErr    error
	releaseErr error
	rankDelay  time.Duration
	rows       []*models.RankedResult
	releases   atomic.Int64
}

func (f *faultStore) StageQuery(ctx context.Context, slotID string, q []float32) error {
	if f.stageErr != nil {
		return f.stageErr
	}
	return f.VectorStore.StageQuery(ctx, slotID, q)
}

func (f *faultStore) wait(ctx context.Context) error {
	if f.rankDelay == 0 {
		return nil
	}
	select {
	case <-time.After(f.rankDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *faultStore) Rank(ctx context.Context, q []float32, k int) ([]*models.RankedResult, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	if f.rows != nil {
		return f.rows, nil
	}
	return f.VectorStore.Rank(ctx, q, k)
}

func (f *faultStore) RankStaged(ctx context.Context, slotID string, k int) ([]*models.RankedResult, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	return f.VectorStore.RankStaged(ctx, slotID, k)
}

func (f *faultStore) ReleaseSlot(ctx context.Context, slotID string) error {
	f.releases.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.releaseErr != nil {
		return f.releaseErr
	}
	return f.VectorStore.ReleaseSlot(ctx, slotID)
}

func newFaultStore(t *testing.T) *faultStore {
	t.Helper()
	mem := storage.NewMemoryStore()
	if err := mem.ReplaceCorpus(context.Background(), scenarioRecords(), "m"); err != nil {
		t.Fatal(err)
	}
	return &faultStore{VectorStore: mem}
}

func states(s ...State) []State { return s }

func TestSession_SuccessHistory(t *testing.T) {
	for _, mode := range allModes {
		t.Run(string(mode), func(t *testing.T) {
			store := newFaultStore(t)
			engine := NewEngine(store, nil, testConfig(mode))
			sess := engine.NewSession()
			results, err := sess.Run(context.Background(), []float32{0, 1}, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != 1 || results[0].Key != "2" {
				t.Errorf("results = %+v", results)
			}
			want := states(StateIdle, StateStaging, StateRanking, StateCollecting, StateCleanup, StateDone)
			if got := sess.History(); !reflect.DeepEqual(got, want) {
				t.Errorf("history = %v, want %v", got, want)
			}
			wantReleases := int64(1)
			if mode == SlotBound {
				wantReleases = 0
			}
			if store.releases.Load() != wantReleases {
				t.Errorf("releases = %d, want %d", store.releases.Load(), wantReleases)
			}
		})
	}
}

func TestSession_StagingFailure(t *testing.T) {
	store := newFaultStore(t)
	store.stageErr = errors.New("disk full")
	engine := NewEngine(store, nil, testConfig(SlotSession))
	sess := engine.NewSession()

	_, err := sess.Run(context.Background(), []float32{1, 0}, 1)
	var stagingErr *StagingError
	if !errors.As(err, &stagingErr) || stagingErr.SessionID != sess.ID {
		t.Fatalf("expected StagingError for %s, got %v", sess.ID, err)
	}
	want := states(StateIdle, StateStaging, StateCleanup, StateFailed)
	if got := sess.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	if store.releases.Load() != 1 {
		t.Errorf("partial slot not released: releases = %d", store.releases.Load())
	}
}

func TestSession_RankingFailure(t *testing.T) {
	store := newFaultStore(t)
	store.rankErr = errors.New("no such function: cosine_similarity")
	engine := NewEngine(store, nil, testConfig(SlotExclusive))
	sess := engine.NewSession()

	_, err := sess.Run(context.Background(), []float32{1, 0}, 1)
	var rankErr *RankingError
	if !errors.As(err, &rankErr) {
		t.Fatalf("expected RankingError, got %v", err)
	}
	want := states(StateIdle, StateStaging, StateRanking, StateCleanup, StateFailed)
	if got := sess.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
	// The exclusive slot must be free for the next session.
	if _, err := engine.NewSession().Run(context.Background(), []float32{1, 0}, 1); !errors.As(err, &rankErr) {
		t.Errorf("second session: %v", err)
	}
}

func TestSession_CleanupFailureIsNonFatal(t *testing.T) {
	store := newFaultStore(t)
	store.releaseErr = errors.New("connection reset")
	engine := NewEngine(store, nil, testConfig(SlotSession), WithLogger(zap.NewNop()))
	sess := engine.NewSession()

	results, err := sess.Run(context.Background(), []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("cleanup failure overturned a successful ranking: %v", err)
	}
	if len(results) != 1 || results[0].Key != "1" {
		t.Errorf("results = %+v", results)
	}
	if sess.State() != StateDone {
		t.Errorf("state = %s, want DONE", sess.State())
	}
	var cleanupErr *CleanupError
	if !errors.As(sess.CleanupErr(), &cleanupErr) {
		t.Errorf("CleanupErr = %v", sess.CleanupErr())
	}
	if engine.CleanupFailures() != 1 {
		t.Errorf("cleanup failures = %d, want 1", engine.CleanupFailures())
	}
}

func TestSession_StoreTimeoutStillCleansUp(t *testing.T) {
	store := newFaultStore(t)
	store.rankDelay = time.Second
	cfg := testConfig(SlotSession)
	cfg.StoreTimeout = 20 * time.Millisecond
	engine := NewEngine(store, nil, cfg)
	sess := engine.NewSession()

	_, err := sess.Run(context.Background(), []float32{1, 0}, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", sess.State())
	}
	if store.releases.Load() != 1 || sess.CleanupErr() != nil {
		t.Errorf("cleanup: releases = %d, err = %v", store.releases.Load(), sess.CleanupErr())
	}
}

func TestSession_CallerCancelStillCleansUp(t *testing.T) {
	store := newFaultStore(t)
	store.rankDelay = time.Second
	engine := NewEngine(store, nil, testConfig(SlotSession))
	sess := engine.NewSession()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sess.Run(ctx, []float32{1, 0}, 1); err == nil {
		t.Fatal("expected error")
	}
	if sess.CleanupErr() != nil {
		t.Errorf("cleanup ran with the cancelled context: %v", sess.CleanupErr())
	}
	if mem := store.VectorStore.(*storage.MemoryStore); mem.SlotCount() != 0 {
		t.Errorf("%d slots left staged", mem.SlotCount())
	}
}

func TestSession_InvalidLimit(t *testing.T) {
	store := newFaultStore(t)
	sess := NewEngine(store, nil, testConfig(SlotSession)).NewSession()
	if _, err := sess.Run(context.Background(), []float32{1, 0}, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if store.releases.Load() != 0 {
		t.Error("nothing was staged, nothing should be released")
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s", sess.State())
	}
}

func TestSession_SingleUse(t *testing.T) {
	sess := NewEngine(newFaultStore(t), nil, testConfig(SlotBound)).NewSession()
	if _, err := sess.Run(context.Background(), []float32{1, 0}, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Run(context.Background(), []float32{1, 0}, 1); !errors.Is(err, ErrSessionUsed) {
		t.Errorf("expected ErrSessionUsed, got %v", err)
	}
}

func TestSession_ExclusiveWaitHonoursContext(t *testing.T) {
	engine := NewEngine(newFaultStore(t), nil, testConfig(SlotExclusive))
	engine.exclusive <- struct{}{} // another session holds the slot
	defer func() { <-engine.exclusive }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sess := engine.NewSession()
	_, err := sess.Run(ctx, []float32{1, 0}, 1)
	var stagingErr *StagingError
	if !errors.As(err, &stagingErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected StagingError with deadline, got %v", err)
	}
	if want := states(StateIdle, StateFailed); !reflect.DeepEqual(sess.History(), want) {
		t.Errorf("history = %v, want %v", sess.History(), want)
	}
}

func TestSession_CollectRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		rows []*models.RankedResult
	}{
		{"too_many", []*models.RankedResult{{Key: "a", Score: 1}, {Key: "b", Score: 0.5}}},
		{"increasing", []*models.RankedResult{{Key: "a", Score: 0.1}}},
		{"nan", []*models.RankedResult{{Key: "a", Score: math.NaN()}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFaultStore(t)
			store.rows = tt.rows
			k := 1
			if tt.name == "increasing" {
				store.rows = append(tt.rows, &models.RankedResult{Key: "b", Score: 0.9})
				k = 2
			}
			sess := NewEngine(store, nil, testConfig(SlotBound)).NewSession()
			_, err := sess.Run(context.Background(), []float32{1, 0}, k)
			var rankErr *RankingError
			if !errors.As(err, &rankErr) {
				t.Errorf("expected RankingError, got %v", err)
			}
			if got := sess.History(); got[len(got)-3] != StateCollecting {
				t.Errorf("history = %v", got)
			}
		})
	}
}

func TestParseSlotMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SlotMode
		wantErr bool
	}{
		{"", SlotBound, false},
		{"bound", SlotBound, false},
		{"session", SlotSession, false},
		{"exclusive", SlotExclusive, false},
		{"shared", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSlotMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSlotMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateCollecting.String() != "COLLECTING" || State(99).String() != "State(99)" {
		t.Errorf("unexpected names: %s %s", StateCollecting, State(99))
	}
}
