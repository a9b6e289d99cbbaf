package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/envdetect"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/kube"
	"github.com/kubilitics/kubilitics-gate/internal/llm/types"
)

type noCredsLLM struct{}

func (noCredsLLM) Complete(context.Context, []types.Message) (string, error) {
	return "", types.ErrMissingCredentials
}
func (noCredsLLM) CredentialsAvailable(context.Context) error { return types.ErrMissingCredentials }
func (noCredsLLM) Provider() string { return "bedrock" }
func (noCredsLLM) Model() string { return "test" }

const fullReply = `PERFORMANCE_SCORE: 90
PERFORMANCE_ISSUES: 0
INFRASTRUCTURE_SCORE: 85
INFRASTRUCTURE_ISSUES: 0
PLATFORM_SCORE: 88
PLATFORM_ISSUES: 0
TREND_SCORE: 92
TREND_ISSUES: 0
SUMMARY: steady`

func fakeKube(host string) *kube.Client {
	return &kube.Client{
		Clientset: k8sfake.NewSimpleClientset(),
		Metrics:   metricsfake.NewSimpleClientset(),
		Config:    &rest.Config{Host: host},
		Context:   "ci",
	}
}

func emptyDetector() *envdetect.Detector {
	return envdetect.NewDetectorWithEnv(map[string]string{})
}

func TestBuildForcedSimulationIsDeterministic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gate.Mode = "simulation"
	cfg.Gate.HealthThreshold = 80

	run := func() *health.HealthReport {
		g, err := Build(context.Background(), cfg, Deps{Logger: zaptest.NewLogger(t), Detector: emptyDetector()})
		require.NoError(t, err)
		assert.Equal(t, health.ModeSimulation, g.Mode())
		return g.Run(context.Background())
	}

	a, b := run(), run()
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.OverallScore, b.OverallScore)
	assert.Equal(t, a.CriticalIssues, b.CriticalIssues)
	assert.Equal(t, a.Recommendation, b.Recommendation)
	assert.Equal(t, a.Assessments, b.Assessments)
	assert.Equal(t, a.Summary, b.Summary)
	assert.Equal(t, health.ModeSimulation, a.Mode)
	assert.Equal(t, 80.0, a.Threshold)
	assert.Equal(t, "manual-execution", a.Context.PipelineID)
}

func TestBuildSimulationDegradedCategoryBlocks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gate.Mode = "simulation"
	cfg.Telemetry.SimulationDegrade = "platform"

	g, err := Build(context.Background(), cfg, Deps{Detector: emptyDetector()})
	require.NoError(t, err)

	r := g.Run(context.Background())
	platform, ok := r.Assessment(health.CategoryPlatform)
	require.True(t, ok)
	assert.Greater(t, platform.IssuesFound, 0)
	assert.Equal(t, health.RecommendationBlock, r.Recommendation)
}

func TestBuildAutoModeResolution(t *testing.T) {
	tests := []struct {
		name     string
		kube     *kube.Client
		llm      *scriptedLLM
		noCreds  bool
		wantMode health.Mode
		wantEnv  envdetect.Type
	}{
		{
			name:     "no cluster falls back to simulation",
			llm:      &scriptedLLM{},
			wantMode: health.ModeSimulation,
			wantEnv:  envdetect.Unknown,
		},
		{
			name:     "eks with credentials runs real",
			kube:     fakeKube("https://ABCDEF.gr7.us-east-1.eks.amazonaws.com"),
			llm:      &scriptedLLM{reply: fullReply},
			wantMode: health.ModeReal,
			wantEnv:  envdetect.AWSEKS,
		},
		{
			name:     "eks without credentials falls back to simulation",
			kube:     fakeKube("https://ABCDEF.gr7.us-east-1.eks.amazonaws.com"),
			noCreds:  true,
			wantMode: health.ModeSimulation,
			wantEnv:  envdetect.AWSEKS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			deps := Deps{Logger: zaptest.NewLogger(t), Detector: emptyDetector(), Kube: tt.kube}
			if tt.noCreds {
				deps.LLM = noCredsLLM{}
			} else {
				deps.LLM = tt.llm
			}
			if tt.kube == nil {
				// Keep the builder from loading a kubeconfig from the host.
				cfg.Telemetry.Kubeconfig = t.TempDir() + "/missing-kubeconfig"
			}

			g, err := Build(context.Background(), cfg, deps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, g.Mode())
			assert.Equal(t, tt.wantEnv, g.Environment().Type)

			r := g.Run(context.Background())
			assert.Equal(t, string(tt.wantEnv), r.Context.DetectedEnv)
			assert.Len(t, r.Assessments, 4)
		})
	}
}

func TestBuildRealModeWithoutBackendsDefaultsEverything(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gate.Mode = "real"
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = ""

	g, err := Build(context.Background(), cfg, Deps{
		Logger:   zaptest.NewLogger(t),
		Detector: emptyDetector(),
		Kube:     fakeKube("https://10.0.0.1:6443"),
	})
	require.NoError(t, err)
	assert.Equal(t, health.ModeReal, g.Mode())

	r := g.Run(context.Background())
	perf, _ := r.Assessment(health.CategoryPerformance)
	assert.True(t, perf.Defaulted)
	trend, _ := r.Assessment(health.CategoryTrend)
	assert.True(t, trend.Defaulted)
	assert.Equal(t, health.RecommendationBlock, r.Recommendation)
	assert.GreaterOrEqual(t, r.CriticalIssues, 2)
}

func TestBuildRejectsUnsupportedProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gate.Mode = "real"
	cfg.LLM.Provider = "bogus"

	_, err := Build(context.Background(), cfg, Deps{Detector: emptyDetector(), Kube: fakeKube("https://10.0.0.1:6443")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestBuildRejectsInvalidPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Gate.Mode = "simulation"
	cfg.Gate.HealthThreshold = 101

	_, err := Build(context.Background(), cfg, Deps{Detector: emptyDetector()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health threshold must be between 0 and 100")
}

func TestDetectEnvironmentWithoutCluster(t *testing.T) {
	env := DetectEnvironment(envdetect.NewDetectorWithEnv(map[string]string{"GITHUB_ACTIONS": "true"}), nil)
	assert.Equal(t, envdetect.GitHubActions, env.Type)
	assert.False(t, env.KubernetesAvailable)
}
