// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
	"github.com/cognicore/harmonica/pkg/harmonica/store"
)

// Run exercises a store implementation. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("RunLifecycle", func(t *testing.T) { testRunLifecycle(t, open(t)) })
	t.Run("RadiusSummary", func(t *testing.T) { testRadiusSummary(t, open(t)) })
	t.Run("ReplaceSentence", func(t *testing.T) { testReplaceSentence(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
}

func testRunLifecycle(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	run, err := st.BeginRun(ctx, store.Run{Dir: "preciselasso_sample2000_anchor3_consisloss1", Config: "seed: 123\n"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, store.StatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	require.NoError(t, st.RecordSentence(ctx, run.ID, store.Sentence{Index: 0, Length: 4, UsedAnchors: 2, Samples: 16, MAE: map[int]float64{0: 0.1}}))
	require.NoError(t, st.RecordSentence(ctx, run.ID, store.Sentence{Index: 1, Length: 1, Skipped: true}))

	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, st.FinishRun(ctx, run.ID, store.StatusFinished, done))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Dir, got.Dir)
	assert.Equal(t, "seed: 123\n", got.Config)
	assert.Equal(t, store.StatusFinished, got.Status)
	assert.True(t, done.Equal(got.FinishedAt))
	assert.Equal(t, 1, got.Explained)
	assert.Equal(t, 1, got.Skipped)

	other, err := st.BeginRun(ctx, store.Run{})
	require.NoError(t, err)
	assert.NotEqual(t, run.ID, other.ID)
}

func testRadiusSummary(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	run, err := st.BeginRun(ctx, store.Run{ID: "run-a"})
	require.NoError(t, err)
	assert.Equal(t, "run-a", run.ID)

	rows := []store.Sentence{
		{Index: 0, Length: 5, MAE: map[int]float64{0: 0.1, 1: 0.2}},
		{Index: 1, Length: 6, MAE: map[int]float64{0: 0.3, 1: 0.4}},
		{Index: 2, Length: 1, Skipped: true},
	}
	for _, r := range rows {
		require.NoError(t, st.RecordSentence(ctx, run.ID, r))
	}

	stats, err := st.RadiusSummary(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 0, stats[0].Radius)
	assert.Equal(t, 2, stats[0].Sentences)
	assert.InDelta(t, 0.2, stats[0].MeanMAE, 1e-12)
	assert.InDelta(t, 0.3, stats[0].MaxMAE, 1e-12)
	assert.Equal(t, 1, stats[1].Radius)
	assert.InDelta(t, 0.3, stats[1].MeanMAE, 1e-12)
}

func testReplaceSentence(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	run, err := st.BeginRun(ctx, store.Run{})
	require.NoError(t, err)

	require.NoError(t, st.RecordSentence(ctx, run.ID, store.Sentence{Index: 7, Length: 5, MAE: map[int]float64{0: 0.9, 2: 0.9}}))
	require.NoError(t, st.RecordSentence(ctx, run.ID, store.Sentence{Index: 7, Length: 5, MAE: map[int]float64{0: 0.1}}))

	stats, err := st.RadiusSummary(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Sentences)
	assert.InDelta(t, 0.1, stats[0].MeanMAE, 1e-12)
}

func testNotFound(t *testing.T, st store.Store) {
	ctx := context.Background()
	defer st.Close()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
	assert.ErrorIs(t, st.RecordSentence(ctx, "missing", store.Sentence{}), internalerr.ErrNotFound)
	assert.ErrorIs(t, st.FinishRun(ctx, "missing", store.StatusFailed, time.Now()), internalerr.ErrNotFound)
	_, err = st.RadiusSummary(ctx, "missing")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}
