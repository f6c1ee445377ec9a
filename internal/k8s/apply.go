package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"
)

// Action says what create-or-replace did to an object.
type Action string

const (
	ActionCreated  Action = "created"
	ActionReplaced Action = "replaced"
)

// AppliedObject identifies an object written to the cluster.
type AppliedObject struct {
	Kind      string
	Name      string
	Namespace string
	Action    Action
}

// ApplyManifest decodes multi-document YAML and creates or replaces each object.
// Empty documents are skipped.
func (c *client) ApplyManifest(ctx context.Context, manifest []byte, namespace string) ([]AppliedObject, error) {
	if namespace == "" {
		namespace = c.namespace
	}

	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifest), 4096)

	var applied []AppliedObject
	for docIndex := 0; ; docIndex++ {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return applied, fmt.Errorf("failed to decode manifest document %d: %w", docIndex, err)
		}

		if len(obj.Object) == 0 {
			continue
		}

		result, err := c.createOrReplace(ctx, &obj, namespace)
		if err != nil {
			return applied, fmt.Errorf("failed to apply %s %s/%s: %w", obj.GetKind(), namespace, obj.GetName(), err)
		}

		c.logger.Info("Applied object",
			zap.String("kind", result.Kind),
			zap.String("name", result.Name),
			zap.String("namespace", result.Namespace),
			zap.String("action", string(result.Action)))
		applied = append(applied, result)
	}

	return applied, nil
}

// createOrReplace creates obj, or overwrites the existing object of the same
// name. The replace is a full Update carrying the live resourceVersion, not a merge.
func (c *client) createOrReplace(ctx context.Context, obj *unstructured.Unstructured, namespace string) (AppliedObject, error) {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return AppliedObject{}, fmt.Errorf("object has no kind set")
	}
	if obj.GetName() == "" {
		return AppliedObject{}, fmt.Errorf("object has no name set")
	}

	mapping, err := c.restMapping(obj)
	if err != nil {
		return AppliedObject{}, err
	}

	var resource dynamic.ResourceInterface = c.dynamicClient.Resource(mapping.Resource)
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		obj.SetNamespace(namespace)
		resource = c.dynamicClient.Resource(mapping.Resource).Namespace(namespace)
	} else {
		obj.SetNamespace("")
	}

	result := AppliedObject{
		Kind:      gvk.Kind,
		Name:      obj.GetName(),
		Namespace: obj.GetNamespace(),
		Action:    ActionCreated,
	}

	_, err = resource.Create(ctx, obj, metav1.CreateOptions{})
	if err == nil {
		return result, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return AppliedObject{}, fmt.Errorf("create failed: %w", err)
	}

	existing, err := resource.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return AppliedObject{}, fmt.Errorf("failed to get existing object: %w", err)
	}
	obj.SetResourceVersion(existing.GetResourceVersion())

	if _, err := resource.Update(ctx, obj, metav1.UpdateOptions{}); err != nil {
		return AppliedObject{}, fmt.Errorf("replace failed: %w", err)
	}

	result.Action = ActionReplaced
	return result, nil
}

// restMapping maps the object's GVK, resetting a cached mapper once on a miss
// so kinds installed after startup are found.
func (c *client) restMapping(obj *unstructured.Unstructured) (*meta.RESTMapping, error) {
	gvk := obj.GroupVersionKind()

	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil && meta.IsNoMatchError(err) {
		if resettable, ok := c.mapper.(meta.ResettableRESTMapper); ok {
			resettable.Reset()
			mapping, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get REST mapping for %v: %w", gvk, err)
	}
	return mapping, nil
}
