package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotFillsMissingCategories(t *testing.T) {
	snap := NewSnapshot(Reading{
		Category:  CategoryPerformance,
		Available: true,
		Source:    "prometheus",
		Metrics:   map[string]float64{"error_ratio": 0.01},
	})

	readings := snap.Readings()
	require.Len(t, readings, 4)
	assert.Equal(t, Categories()[0], readings[0].Category)
	assert.True(t, readings[0].Available)

	for _, r := range readings[1:] {
		assert.False(t, r.Available, "category %s should be a placeholder", r.Category)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, 1, snap.AvailableCount())
}

func TestNewSnapshotIgnoresUnknownCategory(t *testing.T) {
	snap := NewSnapshot(Reading{Category: "network", Available: true})
	assert.Equal(t, 0, snap.AvailableCount())
	assert.Len(t, snap.Readings(), 4)
}

func TestReadingSummary(t *testing.T) {
	r := Reading{
		Category:  CategoryPlatform,
		Available: true,
		Source:    "kubernetes",
		Metrics:   map[string]float64{"pods_total": 4, "pods_ready": 3},
		Notes:     []string{"pod api-1 not ready"},
	}
	assert.Equal(t, "platform [kubernetes] pods_ready=3 pods_total=4 | pod api-1 not ready", r.Summary())

	u := Unavailable(CategoryTrend, "prometheus", errors.New("timeout"))
	assert.Equal(t, "trend [prometheus] unavailable: timeout", u.Summary())
}

func TestConservativeDefault(t *testing.T) {
	a := ConservativeDefault(CategoryInfrastructure, "metrics-server unreachable")
	assert.Equal(t, 0.0, a.SubScore)
	assert.Equal(t, 1, a.IssuesFound)
	assert.True(t, a.Defaulted)
	assert.Equal(t, CategoryInfrastructure, a.Category)
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr string
	}{
		{name: "defaults", weights: DefaultWeights()},
		{name: "equal split", weights: Weights{0.25, 0.25, 0.25, 0.25}},
		{name: "sum above one", weights: Weights{0.4, 0.25, 0.25, 0.2}, wantErr: "sum to 1.0"},
		{name: "sum below one", weights: Weights{0.3, 0.25, 0.25, 0.1}, wantErr: "sum to 1.0"},
		{name: "negative", weights: Weights{1.2, -0.2, 0, 0}, wantErr: "within [0,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunContextShortSHA(t *testing.T) {
	assert.Equal(t, "0123abcd", RunContext{CommitSHA: "0123abcdef456"}.ShortSHA())
	assert.Equal(t, "unknown", RunContext{CommitSHA: "unknown"}.ShortSHA())
}
