package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/cvlacsync/internal/model"
	"github.com/ppiankov/cvlacsync/internal/store"
)

func TestMetrics_RecordPass(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	s := store.NewMemoryStore()
	addItem(t, s, "ok", "http://a")
	addItem(t, s, "bad", "http://b")

	extractor := ExtractorFunc(func(ctx context.Context, link string) ([]model.ExtractedFact, error) {
		if link == "http://b" {
			return nil, errors.New("boom")
		}
		return []model.ExtractedFact{{Category: "X"}, {Category: "Y"}}, nil
	})

	_, err := NewRunner(s, extractor, WithMetrics(metrics)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.attempted))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.succeeded))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failed.WithLabelValues(string(model.StageExtract))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.facts))
	assert.Positive(t, testutil.ToFloat64(metrics.lastPass))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.itemDuration))
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	metrics.attempted.Add(3)

	path := filepath.Join(t.TempDir(), "cvlacsync.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "cvlacsync_items_attempted_total 3"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeItem(itemResult{})
		m.observePass(nil, time.Now())
	})
}
