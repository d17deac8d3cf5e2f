package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laborcond/inference"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecentPredictions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, inference.Event{
		ID: "a", Kind: inference.KindBenefit, Key: "AFORE", Artifact: "modelo_afore.json",
		Label: 1, Probability: 0.85, Elapsed: 3 * time.Millisecond, At: base,
	}))
	require.NoError(t, store.Record(ctx, inference.Event{
		ID: "b", Kind: inference.KindWage, Key: "discapacidad_ver", Artifact: "modelo_salario_discapacidad_ver.json",
		WithDisability: 25.77, WithoutDisability: 31.2, At: base.Add(time.Minute),
	}))

	recent, err := store.RecentPredictions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	assert.Equal(t, "b", recent[0].EventID)
	assert.Equal(t, 25.77, recent[0].WithDisability)
	assert.Equal(t, "a", recent[1].EventID)
	assert.Equal(t, 1, recent[1].Label)
	assert.InDelta(t, 3.0, recent[1].ElapsedMS, 1e-9)
	assert.True(t, base.Equal(recent[1].CreatedAt))
}

func TestUsageByArtifactSkipsFailures(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []inference.Event{
		{ID: "1", Kind: inference.KindBenefit, Key: "AFORE", Artifact: "modelo_afore.json", At: now},
		{ID: "2", Kind: inference.KindBenefit, Key: "AFORE", Artifact: "modelo_afore.json", At: now},
		{ID: "3", Kind: inference.KindBenefit, Key: "AFORE", Artifact: "modelo_afore.json", At: now, Err: errors.New("missing")},
		{ID: "4", Kind: inference.KindBenefit, Key: "Aguinaldo", Artifact: "modelo_aguinaldo.json", At: now.Add(-48 * time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, store.Record(ctx, e))
	}

	usage, err := store.UsageByArtifact(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"modelo_afore.json": 2}, usage)
}

func TestRecordRequiresEventID(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.Record(context.Background(), inference.Event{Kind: inference.KindWage}))
}

func TestEvaluationLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := EvaluationLog{ModelName: "modelo_afore.json", Accuracy: 0.8, Precision: 0.7, Recall: 0.6,
		EvaluatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), DataPoints: 100}
	newer := older
	newer.Accuracy = 0.9
	newer.EvaluatedAt = older.EvaluatedAt.Add(24 * time.Hour)

	require.NoError(t, store.SaveEvaluation(ctx, older))
	require.NoError(t, store.SaveEvaluation(ctx, newer))
	assert.Error(t, store.SaveEvaluation(ctx, EvaluationLog{}))

	logs, err := store.LoadEvaluationLog(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 0.9, logs[0].Accuracy)
	assert.Equal(t, 100, logs[1].DataPoints)
}

func TestNilStore(t *testing.T) {
	var store *Store
	assert.ErrorIs(t, store.Record(context.Background(), inference.Event{ID: "x"}), ErrNotInitialized)
	assert.NoError(t, store.Close())
}
