package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Client bundles the clientsets the gate reads from.
type Client struct {
	Clientset kubernetes.Interface
	Metrics   metricsclient.Interface
	Config    *rest.Config
	// Context is the kubeconfig context in use; empty for in-cluster config.
	Context string
}

// Host returns the API server URL, or "" when unknown.
func (c *Client) Host() string {
	if c == nil || c.Config == nil {
		return ""
	}
	return c.Config.Host
}

// NewClient builds clients from kubeconfigPath, falling back to in-cluster
// config and then ~/.kube/config when the path is empty. qps bounds client-side
// request rate; 0 keeps the client-go default.
func NewClient(kubeconfigPath string, qps float32) (*Client, error) {
	config, contextName, err := LoadConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}

	if qps > 0 {
		config.QPS = qps
		config.Burst = int(qps * 2)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	return &Client{
		Clientset: clientset,
		Metrics:   metrics,
		Config:    config,
		Context:   contextName,
	}, nil
}

// LoadConfig resolves a rest.Config and the context name it came from.
func LoadConfig(kubeconfigPath string) (*rest.Config, string, error) {
	if kubeconfigPath == "" && os.Getenv("KUBECONFIG") == "" {
		// Try in-cluster config first
		if config, err := rest.InClusterConfig(); err == nil {
			return config, "", nil
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	} else if os.Getenv("KUBECONFIG") == "" {
		if homeDir, _ := os.UserHomeDir(); homeDir != "" {
			rules.ExplicitPath = filepath.Join(homeDir, ".kube", "config")
		}
	}

	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{})
	config, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build config: %w", err)
	}

	contextName := ""
	if raw, err := clientConfig.RawConfig(); err == nil {
		contextName = raw.CurrentContext
	}

	return config, contextName, nil
}
