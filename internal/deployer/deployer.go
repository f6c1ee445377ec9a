// Package deployer renders a tenant's manifests and applies them to the cluster.
package deployer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tenant-provisioner/internal/k8s"
	"tenant-provisioner/internal/manifest"
	"tenant-provisioner/internal/model"
	"tenant-provisioner/internal/tenant"
)

// Deployer applies the workload manifest and then the service manifest for a
// tenant. A failure on the service leaves the workload in place.
type Deployer struct {
	client    k8s.Client
	renderer  *manifest.Renderer
	namespace string
	logger    *zap.Logger
}

// NewDeployer creates a Deployer. An empty namespace means the client's
// context namespace.
func NewDeployer(client k8s.Client, renderer *manifest.Renderer, namespace string, logger *zap.Logger) *Deployer {
	return &Deployer{
		client:    client,
		renderer:  renderer,
		namespace: namespace,
		logger:    logger,
	}
}

// Namespace is where tenant objects are applied.
func (d *Deployer) Namespace() string {
	if d.namespace != "" {
		return d.namespace
	}
	return d.client.Namespace()
}

// DeployTenant renders and checks every template before applying any of them.
func (d *Deployer) DeployTenant(ctx context.Context, tenantID string, creds model.Credentials) error {
	namespace := d.Namespace()

	templates := []string{manifest.DeploymentTemplate, manifest.ServiceTemplate}
	rendered := make([]string, 0, len(templates))
	for _, templatePath := range templates {
		text, err := d.renderer.Render(templatePath, tenantID, creds)
		if err != nil {
			return err
		}
		if err := manifest.CheckResolved(text); err != nil {
			return fmt.Errorf("template %s: %w", templatePath, err)
		}
		rendered = append(rendered, text)
	}

	for i, text := range rendered {
		applied, err := d.client.ApplyManifest(ctx, []byte(text), namespace)
		if err != nil {
			return fmt.Errorf("failed to apply %s for tenant %s: %w", templates[i], tenantID, err)
		}
		if len(applied) == 0 {
			return fmt.Errorf("template %s produced no objects", templates[i])
		}
	}

	d.logger.Info("Tenant workload deployed",
		zap.String("tenant_id", tenantID),
		zap.String("resource", tenant.ResourceName(tenantID)),
		zap.String("namespace", namespace))
	return nil
}
