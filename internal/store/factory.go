// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// ReportStoreFactory creates a report store from the storage config.
type ReportStoreFactory func(cfg *StorageConfig) (ReportStore, error)

var (
	reportFactories = map[string]ReportStoreFactory{}
	factoriesMu     sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(*StorageConfig) (ReportStore, error) {
		return NewMemoryReportStore(), nil
	})
}

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, factory ReportStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	reportFactories[name] = factory
}

// resolveBackend returns the effective backend name, defaulting to "memory".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "memory"
	}
	return cfg.Backend
}

// NewReportStore creates the report store for cfg.
func NewReportStore(cfg *StorageConfig) (ReportStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := reportFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, sigilerr.Errorf(sigilerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: %q", backend)
	}

	if cfg == nil {
		cfg = &StorageConfig{}
	}
	return factory(cfg)
}
