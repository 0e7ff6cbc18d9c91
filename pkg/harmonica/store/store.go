// Package store records explanation runs and their per-sentence outcomes.
package store

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Run status values.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Store is the run ledger.
type Store interface {
	Close() error

	// BeginRun stores a new run. An empty ID is replaced by a fresh one and
	// a zero StartedAt by the current time. The stored run is returned.
	BeginRun(ctx context.Context, r Run) (Run, error)
	// RecordSentence stores (or replaces) the outcome of one sentence.
	RecordSentence(ctx context.Context, runID string, s Sentence) error
	FinishRun(ctx context.Context, runID, status string, at time.Time) error

	GetRun(ctx context.Context, runID string) (Run, error)
	// RadiusSummary aggregates the explained sentences of a run per radius,
	// ordered by radius.
	RadiusSummary(ctx context.Context, runID string) ([]RadiusStat, error)
}

// Run is one invocation of the explainer over a dataset range.
type Run struct {
	ID         string
	Dir        string
	Config     string // YAML snapshot
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time

	// Filled by GetRun.
	Explained int
	Skipped   int
}

// Sentence is the ledger row of one dataset entry.
type Sentence struct {
	Index       int
	Length      int
	Skipped     bool
	UsedAnchors int
	Samples     int
	MAE         map[int]float64 // by radius; empty when skipped
}

// RadiusStat aggregates faithfulness at one radius.
type RadiusStat struct {
	Radius    int
	Sentences int
	MeanMAE   float64
	MaxMAE    float64
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new lexically sortable run ID.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
