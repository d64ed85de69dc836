package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"creator-automation/backend/pkg/models"
)

// Condition operators.
const (
	OpEquals       = "equals"
	OpNotEquals    = "not_equals"
	OpGreaterThan  = "greater_than"
	OpLessThan     = "less_than"
	OpGreaterEqual = "greater_equal"
	OpLessEqual    = "less_equal"
	OpContains     = "contains"
	OpOlderThan    = "older_than"
	OpNewerThan    = "newer_than"
)

func knownOperator(op string) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual,
		OpContains, OpOlderThan, OpNewerThan:
		return true
	}
	return false
}

type conditionEvaluator struct {
	fetcher MetricFetcher
	logger  Logger
	now     func() time.Time
}

// evaluate reports whether every condition of wf holds for data. Any error
// makes the whole evaluation false.
func (c *conditionEvaluator) evaluate(ctx context.Context, wf *models.Workflow, data map[string]any) bool {
	for i, cond := range wf.Conditions {
		ok, err := c.check(ctx, cond, data)
		if err != nil {
			c.logger.Warn("condition evaluation failed",
				"workflow_id", wf.ID, "index", i, "type", cond.Type, "operator", cond.Operator, "error", err)
			return false
		}
		if !ok {
			c.logger.Debug("condition not satisfied", "workflow_id", wf.ID, "index", i, "type", cond.Type)
			return false
		}
	}
	return true
}

func (c *conditionEvaluator) check(ctx context.Context, cond models.Condition, data map[string]any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("condition panicked: %v", r)
		}
	}()

	actual, err := c.resolve(ctx, cond.Type, data)
	if err != nil {
		return false, err
	}
	return compare(cond.Operator, actual, cond.Value, c.now())
}

// resolve reads typ from the event payload, falling back to the metric fetcher.
func (c *conditionEvaluator) resolve(ctx context.Context, typ string, data map[string]any) (any, error) {
	if v, ok := lookupPath(data, typ); ok {
		return v, nil
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMetricFetcher, typ)
	}
	v, err := c.fetcher.FetchMetric(ctx, typ, data)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metric %s: %w", typ, err)
	}
	return v, nil
}

// lookupPath walks dotted keys through nested maps. An exact key match wins.
func lookupPath(data map[string]any, path string) (any, bool) {
	if data == nil {
		return nil, false
	}
	if v, ok := data[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return nil, false
	}
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compare(op string, actual, expected any, now time.Time) (bool, error) {
	switch op {
	case OpEquals:
		return equalValues(actual, expected), nil
	case OpNotEquals:
		return !equalValues(actual, expected), nil
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		a, err := toFloat(actual)
		if err != nil {
			return false, err
		}
		b, err := toFloat(expected)
		if err != nil {
			return false, err
		}
		switch op {
		case OpGreaterThan:
			return a > b, nil
		case OpLessThan:
			return a < b, nil
		case OpGreaterEqual:
			return a >= b, nil
		default:
			return a <= b, nil
		}
	case OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)), nil
	case OpOlderThan, OpNewerThan:
		ts, err := toTime(actual)
		if err != nil {
			return false, err
		}
		threshold, err := toFloat(expected)
		if err != nil {
			return false, err
		}
		age := float64(now.Sub(ts)) / float64(time.Millisecond)
		if op == OpOlderThan {
			return age > threshold, nil
		}
		return age < threshold, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
}

// equalValues is strict: numbers of any Go kind compare by value, but a
// string never equals a number.
func equalValues(a, b any) bool {
	na, aok := numeric(a)
	nb, bok := numeric(b)
	if aok && bok {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, error) {
	if f, ok := numeric(v); ok {
		return f, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", s)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t != nil {
			return *t, nil
		}
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("value %q is not an RFC3339 timestamp", t)
		}
		return ts, nil
	default:
		if ms, ok := numeric(v); ok {
			return time.UnixMilli(int64(ms)), nil
		}
	}
	return time.Time{}, fmt.Errorf("value %v (%T) is not a timestamp", v, v)
}
