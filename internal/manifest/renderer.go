// Package manifest renders the tenant workload and service manifests by literal
// placeholder substitution. Templates are opaque text; their Kubernetes schema
// is not interpreted here.
package manifest

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"tenant-provisioner/internal/model"
	"tenant-provisioner/internal/tenant"
)

// Placeholder tokens understood by Render.
const (
	TokenTenantID       = "${TENANT_ID}"
	TokenDBURL          = "${DB_URL}"
	TokenDBUsername     = "${DB_USERNAME}"
	TokenDBPassword     = "${DB_PASSWORD}"
	TokenTenantAppImage = "${TENANT_APP_IMAGE}"
)

// Default template file names.
const (
	DeploymentTemplate = "deployment-template.yaml"
	ServiceTemplate    = "service-template.yaml"
)

const (
	mysqlPort    = 3306
	mysqlOptions = "allowPublicKeyRetrieval=true&useSSL=false&serverTimezone=UTC"
)

// ErrUnresolvedPlaceholder is returned by CheckResolved.
var ErrUnresolvedPlaceholder = errors.New("manifest contains unresolved placeholder")

var placeholder = regexp.MustCompile(`\$\{[A-Z][A-Z0-9_]*\}`)

//go:embed templates/*.yaml
var embedded embed.FS

// DefaultTemplates returns the templates compiled into the binary.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer substitutes tenant values into templates read from an fs.FS.
type Renderer struct {
	templates fs.FS
	dbHost    string
	appImage  string
}

func NewRenderer(templates fs.FS, dbHost, appImage string) *Renderer {
	return &Renderer{
		templates: templates,
		dbHost:    dbHost,
		appImage:  appImage,
	}
}

// DatabaseURL is the JDBC URL the tenant workload connects with.
func DatabaseURL(host, dbName string) string {
	return fmt.Sprintf("jdbc:mysql://%s:%d/%s?%s", host, mysqlPort, dbName, mysqlOptions)
}

// Render reads templatePath fresh and replaces the five tokens. It does not
// check that every token was present or resolved; see CheckResolved.
func (r *Renderer) Render(templatePath, tenantID string, creds model.Credentials) (string, error) {
	raw, err := fs.ReadFile(r.templates, templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}

	replacer := strings.NewReplacer(
		TokenTenantID, tenantID,
		TokenDBURL, DatabaseURL(r.dbHost, tenant.DatabaseName(tenantID)),
		TokenDBUsername, creds.DBUser,
		TokenDBPassword, creds.DBPassword,
		TokenTenantAppImage, r.appImage,
	)
	return replacer.Replace(string(raw)), nil
}

// CheckResolved fails if text still contains a ${UPPER_CASE} token.
func CheckResolved(text string) error {
	if found := placeholder.FindAllString(text, -1); len(found) > 0 {
		return fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(found, ", "))
	}
	return nil
}
