// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"github.com/sigil-dev/extpolicy/internal/store"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newReportStore)
}

func newReportStore(cfg *store.StorageConfig) (store.ReportStore, error) {
	if cfg.Path == "" {
		return nil, sigilerr.New(sigilerr.CodeStoreInvalidInput, "sqlite backend requires storage.path")
	}
	return NewReportStore(cfg.Path)
}
