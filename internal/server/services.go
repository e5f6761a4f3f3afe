// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/store"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/health"
)

// IsNotFound reports whether err carries the server.entity.not_found code.
func IsNotFound(err error) bool {
	return sigilerr.HasCode(err, sigilerr.CodeServerEntityNotFound)
}

// Reloader re-reads the policy source.
type Reloader interface {
	Reload() error
	Health() health.Metrics
}

// Services holds dependencies injected into route handlers.
// Use NewServices to ensure all required services are provided.
type Services struct {
	resolver *management.Resolver
	reloader Reloader          // optional; nil = refresh re-reads in-memory preferences only
	reports  store.ReportStore // optional; nil = report endpoint unavailable
}

// ServicesOption configures optional Services dependencies.
type ServicesOption func(*Services)

func WithReloader(r Reloader) ServicesOption {
	return func(s *Services) { s.reloader = r }
}

func WithReports(rs store.ReportStore) ServicesOption {
	return func(s *Services) { s.reports = rs }
}

// NewServices creates a Services instance with validation.
func NewServices(resolver *management.Resolver, opts ...ServicesOption) (*Services, error) {
	if resolver == nil {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "settings resolver is required")
	}
	s := &Services{resolver: resolver}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Resolver returns the settings resolver.
func (s *Services) Resolver() *management.Resolver { return s.resolver }

// Reloader returns the optional policy reloader.
func (s *Services) Reloader() Reloader { return s.reloader }

// Reports returns the optional report store.
func (s *Services) Reports() store.ReportStore { return s.reports }
