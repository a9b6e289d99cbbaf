package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("simulation", "deploy"))
	RunsTotal.WithLabelValues("simulation", "deploy").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("simulation", "deploy")))

	HealthScore.Set(88.65)
	assert.Equal(t, 88.65, testutil.ToFloat64(HealthScore))

	CategoryScore.WithLabelValues("trend").Set(92)
	assert.Equal(t, 92.0, testutil.ToFloat64(CategoryScore.WithLabelValues("trend")))
}

func TestPush(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath = r.URL.Path
		gotBody = string(body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	CriticalIssues.Set(2)
	err := Push(context.Background(), srv.URL, "kubilitics_gate", map[string]string{
		"pipeline_id": "pipe-1",
		"environment": "",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/kubilitics_gate"), gotPath)
	assert.Contains(t, gotPath, "pipeline_id/pipe-1")
	assert.NotContains(t, gotPath, "environment")
	assert.NotEmpty(t, gotBody)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "kubilitics_gate", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
