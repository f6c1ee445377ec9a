// Package k8s provides the cluster client used to deploy tenant workloads,
// wrapping k8s.io/client-go for create-or-replace of multi-document YAML
// manifests into a single namespace.
package k8s
