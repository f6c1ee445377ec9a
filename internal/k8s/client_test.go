package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/restmapper"
)

var (
	deploymentsGVR = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	servicesGVR    = schema.GroupVersionResource{Group: "", Version: "v1", Resource: "services"}
)

const deploymentManifest = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: tenant-acme
  labels:
    app: tenant-acme
spec:
  replicas: 1
  selector:
    matchLabels:
      app: tenant-acme
  template:
    metadata:
      labels:
        app: tenant-acme
    spec:
      containers:
        - name: app
          image: %s
`

const serviceManifest = `apiVersion: v1
kind: Service
metadata:
  name: tenant-acme
spec:
  selector:
    app: tenant-acme
  ports:
    - port: 80
`

func createTestMapper() meta.RESTMapper {
	resources := []*restmapper.APIGroupResources{
		{
			Group: metav1.APIGroup{
				Name:             "",
				Versions:         []metav1.GroupVersionForDiscovery{{GroupVersion: "v1", Version: "v1"}},
				PreferredVersion: metav1.GroupVersionForDiscovery{GroupVersion: "v1", Version: "v1"},
			},
			VersionedResources: map[string][]metav1.APIResource{
				"v1": {
					{Name: "services", Namespaced: true, Kind: "Service"},
					{Name: "namespaces", Namespaced: false, Kind: "Namespace"},
				},
			},
		},
		{
			Group: metav1.APIGroup{
				Name:             "apps",
				Versions:         []metav1.GroupVersionForDiscovery{{GroupVersion: "apps/v1", Version: "v1"}},
				PreferredVersion: metav1.GroupVersionForDiscovery{GroupVersion: "apps/v1", Version: "v1"},
			},
			VersionedResources: map[string][]metav1.APIResource{
				"v1": {
					{Name: "deployments", Namespaced: true, Kind: "Deployment"},
				},
			},
		},
	}
	return restmapper.NewDiscoveryRESTMapper(resources)
}

func setupTestClient(t *testing.T, namespace string) (Client, *dynamicfake.FakeDynamicClient) {
	t.Helper()
	dynamicClient := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	return NewFromClients(dynamicClient, createTestMapper(), namespace, zap.NewNop()), dynamicClient
}

func deployment(image string) []byte {
	return []byte(fmt.Sprintf(deploymentManifest, image))
}

func containerImage(t *testing.T, obj *unstructured.Unstructured) string {
	t.Helper()
	containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, containers, 1)
	return containers[0].(map[string]interface{})["image"].(string)
}

func TestClient_Interface(t *testing.T) {
	var _ Client = &client{}
}

func TestApplyManifest_Creates(t *testing.T) {
	c, dyn := setupTestClient(t, "tenants")
	ctx := context.Background()

	applied, err := c.ApplyManifest(ctx, deployment("app:1"), "tenants")
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, AppliedObject{Kind: "Deployment", Name: "tenant-acme", Namespace: "tenants", Action: ActionCreated}, applied[0])

	got, err := dyn.Resource(deploymentsGVR).Namespace("tenants").Get(ctx, "tenant-acme", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "app:1", containerImage(t, got))
}

func TestApplyManifest_ReplacesExisting(t *testing.T) {
	c, dyn := setupTestClient(t, "tenants")
	ctx := context.Background()

	_, err := c.ApplyManifest(ctx, deployment("app:1"), "tenants")
	require.NoError(t, err)

	applied, err := c.ApplyManifest(ctx, deployment("app:2"), "tenants")
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, ActionReplaced, applied[0].Action)

	got, err := dyn.Resource(deploymentsGVR).Namespace("tenants").Get(ctx, "tenant-acme", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "app:2", containerImage(t, got))
}

func TestApplyManifest_OverridesManifestNamespace(t *testing.T) {
	c, dyn := setupTestClient(t, "tenants")
	ctx := context.Background()

	manifest := []byte(`apiVersion: v1
kind: Service
metadata:
  name: tenant-acme
  namespace: elsewhere
spec:
  ports:
    - port: 80
`)
	applied, err := c.ApplyManifest(ctx, manifest, "tenants")
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "tenants", applied[0].Namespace)

	_, err = dyn.Resource(servicesGVR).Namespace("tenants").Get(ctx, "tenant-acme", metav1.GetOptions{})
	require.NoError(t, err)
}

func TestApplyManifest_DefaultsToClientNamespace(t *testing.T) {
	c, dyn := setupTestClient(t, "")
	ctx := context.Background()
	assert.Equal(t, DefaultNamespace, c.Namespace())

	applied, err := c.ApplyManifest(ctx, []byte(serviceManifest), "")
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, DefaultNamespace, applied[0].Namespace)

	_, err = dyn.Resource(servicesGVR).Namespace(DefaultNamespace).Get(ctx, "tenant-acme", metav1.GetOptions{})
	require.NoError(t, err)
}

func TestApplyManifest_MultiDocumentInOrder(t *testing.T) {
	c, _ := setupTestClient(t, "tenants")

	manifest := append(deployment("app:1"), []byte("---\n"+serviceManifest)...)
	applied, err := c.ApplyManifest(context.Background(), manifest, "tenants")
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "Deployment", applied[0].Kind)
	assert.Equal(t, "Service", applied[1].Kind)
}

func TestApplyManifest_EmptyDocuments(t *testing.T) {
	c, _ := setupTestClient(t, "tenants")

	applied, err := c.ApplyManifest(context.Background(), []byte("---\n---\n---\n"), "tenants")
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestApplyManifest_InvalidYAML(t *testing.T) {
	c, _ := setupTestClient(t, "tenants")

	_, err := c.ApplyManifest(context.Background(), []byte(`{invalid yaml: [`), "tenants")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode manifest")
}

func TestApplyManifest_UnknownKindKeepsEarlierObjects(t *testing.T) {
	c, dyn := setupTestClient(t, "tenants")
	ctx := context.Background()

	manifest := append([]byte(serviceManifest), []byte(`---
apiVersion: unknown.io/v1
kind: UnknownResource
metadata:
  name: test
`)...)
	applied, err := c.ApplyManifest(ctx, manifest, "tenants")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get REST mapping")
	require.Len(t, applied, 1)

	_, err = dyn.Resource(servicesGVR).Namespace("tenants").Get(ctx, "tenant-acme", metav1.GetOptions{})
	require.NoError(t, err)
}

func TestCreateOrReplace_NoKind(t *testing.T) {
	c := &client{
		dynamicClient: dynamicfake.NewSimpleDynamicClient(runtime.NewScheme()),
		mapper:        createTestMapper(),
		namespace:     DefaultNamespace,
		logger:        zap.NewNop(),
	}

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"metadata":   map[string]interface{}{"name": "test"},
	}}

	_, err := c.createOrReplace(context.Background(), obj, DefaultNamespace)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kind set")
}

func writeKubeconfig(t *testing.T, namespace string) string {
	t.Helper()
	content := `apiVersion: v1
kind: Config
clusters:
  - name: test
    cluster:
      server: https://127.0.0.1:6443
users:
  - name: test
    user:
      token: test-token
contexts:
  - name: test
    context:
      cluster: test
      user: test
      namespace: ` + namespace + `
current-context: test
`
	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolveNamespace(t *testing.T) {
	t.Run("context namespace", func(t *testing.T) {
		path := writeKubeconfig(t, "tenants")
		ns, err := ResolveNamespace(LoadClientConfig(path, ""))
		require.NoError(t, err)
		assert.Equal(t, "tenants", ns)
	})

	t.Run("unset falls back to default", func(t *testing.T) {
		path := writeKubeconfig(t, `""`)
		ns, err := ResolveNamespace(LoadClientConfig(path, "test"))
		require.NoError(t, err)
		assert.Equal(t, DefaultNamespace, ns)
	})
}

func TestNewFromKubeconfig_MissingFile(t *testing.T) {
	_, err := NewFromKubeconfig(filepath.Join(t.TempDir(), "missing"), "", zap.NewNop())
	require.Error(t, err)
}
