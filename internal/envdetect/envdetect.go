// Package envdetect identifies where the gate is running and resolves the
// auto mode into simulation or real.
package envdetect

import (
	"net/url"
	"os"
	"strings"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Type names a detected runtime environment.
type Type string

const (
	Simulation      Type = "simulation"
	GitHubActions   Type = "github_actions"
	AWSEKS          Type = "aws_eks"
	GoogleGKE       Type = "google_gke"
	AzureAKS        Type = "azure_aks"
	DockerDesktop   Type = "docker_desktop"
	LocalKubernetes Type = "local_k8s"
	Kubernetes      Type = "kubernetes"
	Unknown         Type = "unknown"
)

// Environment is the result of detection.
type Environment struct {
	Type                Type   `json:"type" yaml:"type"`
	KubernetesAvailable bool   `json:"kubernetes_available" yaml:"kubernetes_available"`
	CloudProvider       string `json:"cloud_provider,omitempty" yaml:"cloud_provider,omitempty"`
	APIServer           string `json:"api_server,omitempty" yaml:"api_server,omitempty"`
	Context             string `json:"context,omitempty" yaml:"context,omitempty"`
}

// Cluster describes what the kube client could resolve. A zero value means
// no cluster configuration was found.
type Cluster struct {
	Host    string
	Context string
}

func (c Cluster) available() bool { return c.Host != "" }

// Detector runs the detection rules in order; the first match wins.
type Detector struct {
	getenv func(string) string
}

// NewDetector returns a Detector reading the process environment.
func NewDetector() *Detector {
	return &Detector{getenv: os.Getenv}
}

// NewDetectorWithEnv returns a Detector backed by a fixed variable map.
func NewDetectorWithEnv(env map[string]string) *Detector {
	return &Detector{getenv: func(k string) string { return env[k] }}
}

// Detect classifies the environment.
func (d *Detector) Detect(cluster Cluster) Environment {
	env := Environment{
		KubernetesAvailable: cluster.available(),
		CloudProvider:       d.cloudProvider(cluster.Host),
		APIServer:           cluster.Host,
		Context:             cluster.Context,
	}

	switch {
	case strings.EqualFold(d.getenv("AI_OBSERVABILITY_SIMULATION"), "true"):
		env.Type = Simulation
	case strings.EqualFold(d.getenv("GITHUB_ACTIONS"), "true"):
		env.Type = GitHubActions
	case !cluster.available():
		env.Type = Unknown
	default:
		env.Type = classifyCluster(cluster)
	}
	return env
}

func classifyCluster(cluster Cluster) Type {
	host := hostname(cluster.Host)
	ctx := strings.ToLower(cluster.Context)

	switch {
	case strings.HasSuffix(host, ".eks.amazonaws.com"):
		return AWSEKS
	case strings.Contains(host, "container.googleapis.com") || strings.HasPrefix(ctx, "gke_"):
		return GoogleGKE
	case strings.HasSuffix(host, ".azmk8s.io"):
		return AzureAKS
	case ctx == "docker-desktop" || host == "kubernetes.docker.internal":
		return DockerDesktop
	case isLocal(host, ctx):
		return LocalKubernetes
	default:
		return Kubernetes
	}
}

func isLocal(host, ctx string) bool {
	if host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.") {
		return true
	}
	for _, prefix := range []string{"kind-", "minikube", "k3d-", "rancher-desktop"} {
		if strings.HasPrefix(ctx, prefix) {
			return true
		}
	}
	return false
}

func hostname(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Hostname())
}

func (d *Detector) cloudProvider(host string) string {
	h := hostname(host)
	switch {
	case strings.HasSuffix(h, ".eks.amazonaws.com"):
		return "aws"
	case strings.Contains(h, "container.googleapis.com"):
		return "gcp"
	case strings.HasSuffix(h, ".azmk8s.io"):
		return "azure"
	}

	switch {
	case d.getenv("AWS_REGION") != "" || d.getenv("AWS_DEFAULT_REGION") != "":
		return "aws"
	case d.getenv("GOOGLE_CLOUD_PROJECT") != "":
		return "gcp"
	case d.getenv("AZURE_SUBSCRIPTION_ID") != "":
		return "azure"
	}
	return ""
}

// ResolveMode maps the configured mode onto a concrete one. "auto" becomes
// simulation when the environment offers nothing real to observe or the model
// backend has no credentials.
func ResolveMode(configured string, env Environment, credentialsAvailable bool) health.Mode {
	switch configured {
	case string(health.ModeSimulation):
		return health.ModeSimulation
	case string(health.ModeReal):
		return health.ModeReal
	}

	if env.Type == Simulation || env.Type == Unknown || !credentialsAvailable {
		return health.ModeSimulation
	}
	return health.ModeReal
}
