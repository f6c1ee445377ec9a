package manifest

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"

	"tenant-provisioner/internal/model"
)

var creds = model.Credentials{DBUser: "user_acme", DBPassword: "pw-123"}

const allTokens = `id=${TENANT_ID}
url=${DB_URL}
user=${DB_USERNAME}
pass=${DB_PASSWORD}
image=${TENANT_APP_IMAGE}
again=${TENANT_ID}
`

func testRenderer(files fstest.MapFS) *Renderer {
	return NewRenderer(files, "mysql.internal", "registry.local/tenant-service:1.0")
}

func TestRender_ReplacesAllTokens(t *testing.T) {
	r := testRenderer(fstest.MapFS{"t.txt": {Data: []byte(allTokens)}})

	out, err := r.Render("t.txt", "acme", creds)
	require.NoError(t, err)

	for _, tok := range []string{TokenTenantID, TokenDBURL, TokenDBUsername, TokenDBPassword, TokenTenantAppImage} {
		assert.NotContains(t, out, tok)
	}
	assert.Equal(t, `id=acme
url=jdbc:mysql://mysql.internal:3306/db_acme?allowPublicKeyRetrieval=true&useSSL=false&serverTimezone=UTC
user=user_acme
pass=pw-123
image=registry.local/tenant-service:1.0
again=acme
`, out)
	require.NoError(t, CheckResolved(out))
}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer(DefaultTemplates(), "localhost", "cloudvault/tenant-service:poc")

	first, err := r.Render(DeploymentTemplate, "acme", creds)
	require.NoError(t, err)
	second, err := r.Render(DeploymentTemplate, "acme", creds)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRender_ReadsTemplateFresh(t *testing.T) {
	files := fstest.MapFS{"t.txt": {Data: []byte("v1 ${TENANT_ID}")}}
	r := testRenderer(files)

	out, err := r.Render("t.txt", "acme", creds)
	require.NoError(t, err)
	assert.Equal(t, "v1 acme", out)

	files["t.txt"] = &fstest.MapFile{Data: []byte("v2 ${TENANT_ID}")}
	out, err = r.Render("t.txt", "acme", creds)
	require.NoError(t, err)
	assert.Equal(t, "v2 acme", out)
}

func TestRender_MissingTemplate(t *testing.T) {
	r := testRenderer(fstest.MapFS{})

	_, err := r.Render("missing.yaml", "acme", creds)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "failed to read template missing.yaml")
}

func TestRender_DoesNotValidate(t *testing.T) {
	r := testRenderer(fstest.MapFS{"t.txt": {Data: []byte("a=${TENANT_ID} b=${UNKNOWN_TOKEN}")}})

	out, err := r.Render("t.txt", "acme", creds)
	require.NoError(t, err)
	assert.Equal(t, "a=acme b=${UNKNOWN_TOKEN}", out)

	err = CheckResolved(out)
	require.ErrorIs(t, err, ErrUnresolvedPlaceholder)
	assert.Contains(t, err.Error(), "${UNKNOWN_TOKEN}")
}

func TestDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"jdbc:mysql://db.example:3306/db_acme?allowPublicKeyRetrieval=true&useSSL=false&serverTimezone=UTC",
		DatabaseURL("db.example", "db_acme"))
}

func TestDefaultTemplates_RenderToValidObjects(t *testing.T) {
	r := NewRenderer(DefaultTemplates(), "localhost", "cloudvault/tenant-service:poc")

	tests := []struct {
		template string
		kind     string
	}{
		{template: DeploymentTemplate, kind: "Deployment"},
		{template: ServiceTemplate, kind: "Service"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			out, err := r.Render(tt.template, "acme", creds)
			require.NoError(t, err)
			require.NoError(t, CheckResolved(out))

			var obj unstructured.Unstructured
			require.NoError(t, yaml.Unmarshal([]byte(out), &obj.Object))
			assert.Equal(t, tt.kind, obj.GetKind())
			assert.Equal(t, "tenant-acme", obj.GetName())
			assert.Equal(t, "acme", obj.GetLabels()["tenant-provisioner/tenant-id"])
		})
	}
}

func TestDefaultTemplates_DeploymentCarriesCredentials(t *testing.T) {
	r := NewRenderer(DefaultTemplates(), "localhost", "cloudvault/tenant-service:poc")

	out, err := r.Render(DeploymentTemplate, "acme", creds)
	require.NoError(t, err)

	var obj unstructured.Unstructured
	require.NoError(t, yaml.Unmarshal([]byte(out), &obj.Object))

	containers, found, err := unstructured.NestedSlice(obj.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, containers, 1)

	container := containers[0].(map[string]interface{})
	assert.Equal(t, "cloudvault/tenant-service:poc", container["image"])

	env := map[string]string{}
	for _, e := range container["env"].([]interface{}) {
		pair := e.(map[string]interface{})
		env[pair["name"].(string)] = pair["value"].(string)
	}
	assert.Equal(t, "user_acme", env["SPRING_DATASOURCE_USERNAME"])
	assert.Equal(t, "pw-123", env["SPRING_DATASOURCE_PASSWORD"])
	assert.Equal(t, DatabaseURL("localhost", "db_acme"), env["SPRING_DATASOURCE_URL"])
}
