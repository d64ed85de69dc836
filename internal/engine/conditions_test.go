package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"creator-automation/backend/internal/logging"
	"creator-automation/backend/pkg/models"
)

func TestCompare(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tenDaysAgo := now.Add(-10 * 24 * time.Hour)
	day := float64(24 * time.Hour / time.Millisecond)

	tests := []struct {
		name     string
		op       string
		actual   any
		expected any
		want     bool
		wantErr  bool
	}{
		{"equals int float", OpEquals, 3, 3.0, true, false},
		{"equals json number", OpEquals, json.Number("42"), 42, true, false},
		{"equals strings", OpEquals, "gold", "gold", true, false},
		{"equals string vs number is strict", OpEquals, "3", 3, false, false},
		{"equals bool", OpEquals, true, true, true, false},
		{"not equals", OpNotEquals, "gold", "silver", true, false},
		{"greater than", OpGreaterThan, 10, 5, true, false},
		{"greater than equal values", OpGreaterThan, 5, 5, false, false},
		{"less than numeric string", OpLessThan, "12.5", 20, true, false},
		{"greater equal", OpGreaterEqual, 1000, 1000, true, false},
		{"less equal", OpLessEqual, 1001, 1000, false, false},
		{"ordering on non numeric", OpGreaterThan, "lots", 5, false, true},
		{"contains", OpContains, "weekly newsletter", "news", true, false},
		{"contains miss", OpContains, "weekly", "daily", false, false},
		{"older than rfc3339", OpOlderThan, tenDaysAgo.Format(time.RFC3339), 7 * day, true, false},
		{"older than epoch ms", OpOlderThan, tenDaysAgo.UnixMilli(), 14 * day, false, false},
		{"newer than time", OpNewerThan, tenDaysAgo, 14 * day, true, false},
		{"older than bad timestamp", OpOlderThan, "yesterday", day, false, true},
		{"unknown operator", "approximately", 1, 1, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compare(tt.op, tt.actual, tt.expected, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupPath(t *testing.T) {
	data := map[string]any{
		"creator":      map[string]any{"tier": "gold", "stats": map[string]any{"followers": 10}},
		"creator.tier": "exact-wins",
		"flat":         1,
	}

	v, ok := lookupPath(data, "creator.tier")
	assert.True(t, ok)
	assert.Equal(t, "exact-wins", v)

	v, ok = lookupPath(data, "creator.stats.followers")
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	_, ok = lookupPath(data, "creator.missing")
	assert.False(t, ok)
	_, ok = lookupPath(data, "flat.deeper")
	assert.False(t, ok)
	_, ok = lookupPath(nil, "flat")
	assert.False(t, ok)
}

func TestConditionEvaluator(t *testing.T) {
	now := time.Now()
	newEvaluator := func(f MetricFetcher) *conditionEvaluator {
		return &conditionEvaluator{fetcher: f, logger: logging.Discard(), now: func() time.Time { return now }}
	}
	wf := func(conds ...models.Condition) *models.Workflow {
		return &models.Workflow{ID: "wf", Conditions: conds}
	}
	ctx := context.Background()

	t.Run("no conditions always holds", func(t *testing.T) {
		assert.True(t, newEvaluator(nil).evaluate(ctx, wf(), nil))
	})

	t.Run("event data wins over fetcher", func(t *testing.T) {
		fetcher := new(MockMetricFetcher)
		ev := newEvaluator(fetcher)
		assert.True(t, ev.evaluate(ctx, wf(models.Condition{Type: "attempts", Operator: OpGreaterEqual, Value: 3}),
			map[string]any{"attempts": 4}))
		fetcher.AssertNotCalled(t, "FetchMetric", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing field without fetcher fails closed", func(t *testing.T) {
		assert.False(t, newEvaluator(nil).evaluate(ctx,
			wf(models.Condition{Type: "engagement_score", Operator: OpLessThan, Value: 20}), nil))
	})

	t.Run("all conditions must hold", func(t *testing.T) {
		fetcher := new(MockMetricFetcher)
		fetcher.On("FetchMetric", mock.Anything, "engagement_score", mock.Anything).Return(50, nil)
		ev := newEvaluator(fetcher)
		assert.False(t, ev.evaluate(ctx, wf(
			models.Condition{Type: "tier", Operator: OpEquals, Value: "gold"},
			models.Condition{Type: "engagement_score", Operator: OpLessThan, Value: 20},
		), map[string]any{"tier": "gold"}))
		fetcher.AssertExpectations(t)
	})

	t.Run("short circuits on first failure", func(t *testing.T) {
		fetcher := new(MockMetricFetcher)
		ev := newEvaluator(fetcher)
		assert.False(t, ev.evaluate(ctx, wf(
			models.Condition{Type: "tier", Operator: OpEquals, Value: "gold"},
			models.Condition{Type: "engagement_score", Operator: OpLessThan, Value: 20},
		), map[string]any{"tier": "bronze"}))
		fetcher.AssertNotCalled(t, "FetchMetric", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("panicking fetcher fails closed", func(t *testing.T) {
		fetcher := new(MockMetricFetcher)
		fetcher.On("FetchMetric", mock.Anything, "engagement_score", mock.Anything).
			Run(func(mock.Arguments) { panic("nil map") }).Return(nil, nil)
		ev := newEvaluator(fetcher)
		assert.NotPanics(t, func() {
			assert.False(t, ev.evaluate(ctx, wf(
				models.Condition{Type: "engagement_score", Operator: OpLessThan, Value: 20},
			), nil))
		})
	})
}
