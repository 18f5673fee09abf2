package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/yurykabanov/archiver/pkg/domain"
)

var finished = time.Date(2025, 7, 14, 3, 1, 30, 0, time.UTC)

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()

	require.NoError(t, c.RecordRun(ctx, domain.RunReport{
		Source:     "app",
		Kind:       domain.SourceKindDatabase,
		StartedAt:  finished.Add(-90 * time.Second),
		FinishedAt: finished,
		Uploaded:   1,
		Pruned:     2,
	}))
	require.NoError(t, c.RecordRun(ctx, domain.RunReport{
		Source:      "app",
		Kind:        domain.SourceKindDatabase,
		StartedAt:   finished,
		FinishedAt:  finished.Add(time.Minute),
		Uploaded:    1,
		FailedPhase: domain.PhasePruning,
		Err:         multierr.Combine(errors.New("delete a"), errors.New("delete b")),
	}))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runs.WithLabelValues("app", "database", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runs.WithLabelValues("app", "database", "failure")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.uploaded.WithLabelValues("app")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.pruned.WithLabelValues("app")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.errors.WithLabelValues("app", "pruning")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(c.lastSuccess.WithLabelValues("app")))
	assert.Equal(t, float64(finished.Add(time.Minute).Unix()), testutil.ToFloat64(c.lastRun.WithLabelValues("app")))
}

func TestCollector_Register(t *testing.T) {
	registry := prometheus.NewPedanticRegistry()
	c := NewCollector()

	require.NoError(t, registry.Register(c))
	require.NoError(t, c.RecordRun(context.Background(), domain.RunReport{Source: "api", Kind: domain.SourceKindLogs}))

	count, err := testutil.GatherAndCount(registry, "archiver_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
