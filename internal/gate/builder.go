package gate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-gate/internal/analyzer"
	"github.com/kubilitics/kubilitics-gate/internal/audit"
	"github.com/kubilitics/kubilitics-gate/internal/config"
	"github.com/kubilitics/kubilitics-gate/internal/envdetect"
	"github.com/kubilitics/kubilitics-gate/internal/health"
	"github.com/kubilitics/kubilitics-gate/internal/kube"
	"github.com/kubilitics/kubilitics-gate/internal/llm/adapter"
	"github.com/kubilitics/kubilitics-gate/internal/policy"
	"github.com/kubilitics/kubilitics-gate/internal/telemetry"
)

// Deps are optional collaborators. Nil fields are built from the config.
type Deps struct {
	Logger   *zap.Logger
	Audit    audit.Logger
	Detector *envdetect.Detector
	Kube     *kube.Client
	LLM      adapter.LLMAdapter
}

// Build resolves the mode and wires a gate from cfg.
//
// Resolution order:
//  1. Kubernetes client (skipped when the mode is forced to simulation)
//  2. Environment detection
//  3. LLM adapter and its credentials
//  4. Mode: forced, or auto via envdetect.ResolveMode
//  5. Telemetry sources and analyzer for that mode
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Gate, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	auditLogger := deps.Audit
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	forcedSimulation := cfg.Gate.Mode == string(health.ModeSimulation)

	// 1. Kubernetes client
	kc := deps.Kube
	if kc == nil && !forcedSimulation {
		c, err := kube.NewClient(cfg.Telemetry.Kubeconfig, float32(cfg.Telemetry.QueriesPerSecond))
		if err != nil {
			logger.Debug("No Kubernetes configuration found", zap.Error(err))
		} else {
			kc = c
		}
	}

	// 2. Environment
	env := DetectEnvironment(deps.Detector, kc)

	// 3. LLM adapter
	llm := deps.LLM
	if llm == nil && !forcedSimulation {
		a, err := adapter.NewLLMAdapter(ctx, adapter.ConfigFrom(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM adapter: %w", err)
		}
		llm = a
	}
	credsOK := false
	if llm != nil {
		if err := llm.CredentialsAvailable(ctx); err != nil {
			logger.Info("LLM credentials unavailable", zap.String("provider", llm.Provider()), zap.Error(err))
		} else {
			credsOK = true
		}
	}

	// 4. Mode
	mode := envdetect.ResolveMode(cfg.Gate.Mode, env, credsOK)
	logger.Info("Mode resolved",
		zap.String("configured", cfg.Gate.Mode),
		zap.String("resolved", string(mode)),
		zap.String("environment", string(env.Type)),
		zap.Bool("llm_credentials", credsOK),
	)

	rc := cfg.RunContext()
	rc.DetectedEnv = string(env.Type)

	// 5. Telemetry and analyzer
	var sources []telemetry.Source
	var model *analyzer.ModelAssessor
	if mode == health.ModeSimulation {
		sources = telemetry.NewSimulator(cfg.Telemetry.SimulationSeed, health.Category(cfg.Telemetry.SimulationDegrade)).Sources()
	} else {
		var err error
		sources, err = realSources(cfg, kc, logger)
		if err != nil {
			return nil, err
		}
		if llm != nil {
			model = analyzer.NewModelAssessor(llm, analyzer.RetryPolicy{
				AttemptTimeout: cfg.LLMTimeout(),
				MaxRetries:     cfg.LLM.MaxRetries,
				InitialBackoff: cfg.InitialBackoff(),
				MaxBackoff:     cfg.MaxBackoff(),
			}, auditLogger, logger)
		}
		if !credsOK {
			logger.Warn("Real mode without model credentials, every category will be defaulted")
		}
	}

	capturer := telemetry.NewCapturer(cfg.QueryTimeout(), logger, sources...)
	assessor := analyzer.New(model, rc, auditLogger, logger)

	return New(Options{
		Mode: mode,
		Policy: policy.PolicyConfig{
			HealthThreshold: cfg.Gate.HealthThreshold,
			BlockingMode:    cfg.Gate.BlockingMode,
		},
		Weights:     cfg.Weights(),
		Budget:      cfg.RunBudget(),
		RunContext:  rc,
		Environment: env,
	}, capturer, assessor, auditLogger, logger)
}

// DetectEnvironment classifies the runtime from the process environment and
// the resolved cluster, if any. A nil detector reads the process environment.
func DetectEnvironment(detector *envdetect.Detector, kc *kube.Client) envdetect.Environment {
	if detector == nil {
		detector = envdetect.NewDetector()
	}
	cluster := envdetect.Cluster{Host: kc.Host()}
	if kc != nil {
		cluster.Context = kc.Context
	}
	return detector.Detect(cluster)
}

// realSources builds the live sources that have a backend configured.
// Categories without one are reported unavailable by the capturer.
func realSources(cfg *config.Config, kc *kube.Client, logger *zap.Logger) ([]telemetry.Source, error) {
	var sources []telemetry.Source
	ns := cfg.Telemetry.Namespace

	if kc != nil {
		sources = append(sources,
			telemetry.NewPodSource(kc.Clientset, ns),
			telemetry.NewNodeSource(kc.Clientset, kc.Metrics),
		)
	} else {
		logger.Warn("No Kubernetes cluster, platform and infrastructure telemetry unavailable")
	}

	if cfg.Telemetry.PrometheusURL != "" {
		prom, err := telemetry.NewPromClient(cfg.Telemetry.PrometheusURL, cfg.Telemetry.QueriesPerSecond, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Prometheus client: %w", err)
		}
		sources = append(sources,
			telemetry.NewPerformanceSource(prom, ns),
			telemetry.NewTrendSource(prom, ns, cfg.TrendWindow(), cfg.TrendStep()),
		)
	} else {
		logger.Warn("No Prometheus URL, performance and trend telemetry unavailable")
	}
	return sources, nil
}
