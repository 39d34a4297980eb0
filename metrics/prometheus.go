package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "sessionstore"
)

var (
	// StorageNamespace is the prometheus namespace of storage and locking
	// related operations
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)
)
