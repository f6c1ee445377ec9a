package k8s

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultNamespace is used when the kubeconfig context names no namespace.
const DefaultNamespace = "default"

// Client provides the cluster operations needed for tenant deployment.
type Client interface {
	// ApplyManifest creates or replaces every object of a multi-document YAML
	// manifest in namespace. Objects are applied in document order; a failure
	// leaves earlier objects applied.
	ApplyManifest(ctx context.Context, manifest []byte, namespace string) ([]AppliedObject, error)

	// Namespace returns the namespace of the configured context, or DefaultNamespace.
	Namespace() string
}

// client implements Client using the dynamic client and a discovery-backed RESTMapper.
type client struct {
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
	namespace     string
	logger        *zap.Logger
}

// NewFromKubeconfig creates a Client from a kubeconfig path and context name.
// Empty values fall back to the client-go loading rules ($KUBECONFIG,
// ~/.kube/config, then in-cluster configuration).
func NewFromKubeconfig(kubeconfigPath, contextName string, logger *zap.Logger) (Client, error) {
	clientConfig := LoadClientConfig(kubeconfigPath, contextName)

	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}

	namespace, err := ResolveNamespace(clientConfig)
	if err != nil {
		return nil, err
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return &client{
		dynamicClient: dynamicClient,
		mapper:        mapper,
		namespace:     namespace,
		logger:        logger,
	}, nil
}

// NewFromClients creates a Client from pre-configured clients.
// This is useful for testing with fake clients.
func NewFromClients(dynamicClient dynamic.Interface, mapper meta.RESTMapper, namespace string, logger *zap.Logger) Client {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &client{
		dynamicClient: dynamicClient,
		mapper:        mapper,
		namespace:     namespace,
		logger:        logger,
	}
}

// LoadClientConfig builds a non-interactive client config.
func LoadClientConfig(kubeconfigPath, contextName string) clientcmd.ClientConfig {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
}

// ResolveNamespace returns the context namespace, or DefaultNamespace if unset.
func ResolveNamespace(clientConfig clientcmd.ClientConfig) (string, error) {
	namespace, _, err := clientConfig.Namespace()
	if err != nil {
		return "", fmt.Errorf("failed to resolve namespace: %w", err)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace, nil
}

func (c *client) Namespace() string {
	return c.namespace
}
