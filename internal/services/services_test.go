package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creator-automation/backend/internal/logging"
	"creator-automation/backend/pkg/models"
)

func TestHTTPDispatcher_Dispatch(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queued":true}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{
		Endpoints: map[string]string{"notification-service": srv.URL + "/"},
	}, srv.Client(), logging.Discard())

	result, err := d.Dispatch(context.Background(), "notification-service", "notify_creator", map[string]any{"template": "tips"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"queued": true}, result)
	assert.Equal(t, "/operations/notify_creator", gotPath)
	assert.Equal(t, "notify_creator", gotBody["operation"])
	assert.Equal(t, map[string]any{"template": "tips"}, gotBody["params"])
}

func TestHTTPDispatcher_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{Endpoints: map[string]string{"svc": srv.URL}}, nil, logging.Discard())
	result, err := d.Dispatch(context.Background(), "svc", "noop", nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestHTTPDispatcher_UnknownService(t *testing.T) {
	d := NewHTTPDispatcher(DispatcherConfig{}, nil, logging.Discard())
	_, err := d.Dispatch(context.Background(), "ghost-service", "haunt", nil)
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestHTTPDispatcher_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "subscription not found", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{Endpoints: map[string]string{"billing-service": srv.URL}}, srv.Client(), logging.Discard())
	_, err := d.Dispatch(context.Background(), "billing-service", "suspend_subscription", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "subscription not found")
}

func TestHTTPDispatcher_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{
		Endpoints:       map[string]string{"promotion-service": srv.URL},
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, srv.Client(), logging.Discard())

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(context.Background(), "promotion-service", "schedule_boost", nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
	}

	_, err := d.Dispatch(context.Background(), "promotion-service", "schedule_boost", nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the service")
}

func TestHTTPDispatcher_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(DispatcherConfig{
		Endpoints: map[string]string{"svc": srv.URL},
		RateLimit: 0.001,
		Burst:     1,
	}, srv.Client(), logging.Discard())

	_, err := d.Dispatch(context.Background(), "svc", "op", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = d.Dispatch(ctx, "svc", "op", nil)
	assert.Error(t, err)
}

func TestHTTPMetricFetcher_FetchMetric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics/engagement_score", r.URL.Path)
		assert.Equal(t, "creator-7", r.URL.Query().Get("creatorId"))
		_, _ = w.Write([]byte(`{"value": 17.5}`))
	}))
	defer srv.Close()

	f := NewHTTPMetricFetcher(srv.URL, srv.Client())
	v, err := f.FetchMetric(context.Background(), "engagement_score", map[string]any{"creatorId": "creator-7"})
	require.NoError(t, err)
	assert.Equal(t, json.Number("17.5"), v)
}

func TestHTTPMetricFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metrics/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/metrics/empty":
			_, _ = w.Write([]byte(`{}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	f := NewHTTPMetricFetcher(srv.URL, srv.Client())
	for _, metric := range []string{"missing", "empty", "garbled"} {
		_, err := f.FetchMetric(context.Background(), metric, nil)
		assert.Error(t, err, metric)
	}
}

func TestLogAlertSink_LevelFollowsSeverity(t *testing.T) {
	tests := []struct {
		severity models.AlertSeverity
		level    string
	}{
		{models.SeverityCritical, "ERROR"},
		{models.SeverityError, "ERROR"},
		{models.SeverityWarning, "WARN"},
		{models.SeverityInfo, "INFO"},
	}
	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			var buf bytes.Buffer
			sink := NewLogAlertSink(logging.New(&buf, "debug", "json"))
			sink.RaiseAlert(context.Background(), models.Alert{
				Title:    "Repeated payment failure",
				Severity: tt.severity,
				Source:   "payment-failure-escalation",
				Metadata: map[string]any{"attempts": 3},
			})

			var rec map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
			assert.Equal(t, tt.level, rec["level"])
			assert.Equal(t, "Repeated payment failure", rec["title"])
			assert.Equal(t, "payment-failure-escalation", rec["source"])
		})
	}
}
