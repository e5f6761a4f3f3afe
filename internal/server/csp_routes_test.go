// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"net/http"
	"testing"

	"github.com/sigil-dev/extpolicy/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rewriteBody struct {
	Policy   string   `json:"policy"`
	Warnings []string `json:"warnings"`
}

func TestCSPRoutes_Sanitize(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	yes := true

	tests := []struct {
		name         string
		body         map[string]any
		want         string
		warningParts []string
	}{
		{
			name: "secure policy unchanged",
			body: map[string]any{"policy": "script-src 'self'; object-src 'self';"},
			want: "script-src 'self'; object-src 'self';",
		},
		{
			name:         "insecure source dropped",
			body:         map[string]any{"policy": "default-src 'self' http://evil.com"},
			want:         "default-src 'self';",
			warningParts: []string{"'content_security_policy'", "http://evil.com"},
		},
		{
			name: "manifest key in warnings",
			body: map[string]any{
				"policy":       "default-src 'self' http://evil.com",
				"manifest_key": "content_security_policy.extension_pages",
			},
			want:         "default-src 'self';",
			warningParts: []string{"'content_security_policy.extension_pages'"},
		},
		{
			name: "unsafe eval allowed by request",
			body: map[string]any{
				"policy":            "script-src 'self' 'unsafe-eval'; object-src 'self'",
				"allow_unsafe_eval": &yes,
			},
			want: "script-src 'self' 'unsafe-eval'; object-src 'self';",
		},
		{
			name:         "unsafe eval stripped by default",
			body:         map[string]any{"policy": "script-src 'self' 'unsafe-eval'; object-src 'self'"},
			want:         "script-src 'self'; object-src 'self';",
			warningParts: []string{"'unsafe-eval'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := do(t, srv, http.MethodPost, "/api/v1/csp/sanitize", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			got := decode[rewriteBody](t, w)
			assert.Equal(t, tt.want, got.Policy)
			if len(tt.warningParts) == 0 {
				assert.Empty(t, got.Warnings)
				return
			}
			require.NotEmpty(t, got.Warnings)
			for _, part := range tt.warningParts {
				assert.Contains(t, got.Warnings[0], part)
			}
		})
	}
}

func TestCSPRoutes_SanitizeUsesServerDefaults(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{CSP: server.CSPDefaults{
		ManifestKey:     "csp",
		AllowUnsafeEval: true,
	}})

	got := decode[rewriteBody](t, do(t, srv, http.MethodPost, "/api/v1/csp/sanitize",
		map[string]any{"policy": "script-src 'self' 'unsafe-eval'; object-src 'self'"}))
	assert.Equal(t, "script-src 'self' 'unsafe-eval'; object-src 'self';", got.Policy)

	no := false
	got = decode[rewriteBody](t, do(t, srv, http.MethodPost, "/api/v1/csp/sanitize",
		map[string]any{"policy": "script-src 'self' 'unsafe-eval'; object-src 'self'", "allow_unsafe_eval": &no}))
	assert.Equal(t, "script-src 'self'; object-src 'self';", got.Policy)
	require.NotEmpty(t, got.Warnings)
	assert.Contains(t, got.Warnings[0], "'csp'")
}

func TestCSPRoutes_Sandbox(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})
	got := decode[rewriteBody](t, do(t, srv, http.MethodPost, "/api/v1/csp/sandbox",
		map[string]any{"policy": ""}))
	assert.Equal(t, "child-src 'self'; script-src 'self' 'unsafe-inline' 'unsafe-eval';", got.Policy)
	assert.Empty(t, got.Warnings)

	got = decode[rewriteBody](t, do(t, srv, http.MethodPost, "/api/v1/csp/sandbox",
		map[string]any{"policy": "sandbox allow-scripts; child-src http://x.com; script-src 'unsafe-eval' https://y.com"}))
	assert.Equal(t, "sandbox allow-scripts; child-src 'self'; script-src 'unsafe-eval' 'self';", got.Policy)
	assert.Len(t, got.Warnings, 2)
}

func TestCSPRoutes_RemoteCode(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})

	type result struct {
		Allowed bool   `json:"allowed"`
		Error   string `json:"error"`
	}

	ok := decode[result](t, do(t, srv, http.MethodPost, "/api/v1/csp/remote-code",
		map[string]any{"policy": "script-src 'self'; object-src 'self'"}))
	assert.True(t, ok.Allowed)
	assert.Empty(t, ok.Error)

	bad := decode[result](t, do(t, srv, http.MethodPost, "/api/v1/csp/remote-code",
		map[string]any{"policy": "script-src 'self' https://example.com", "manifest_key": "content_security_policy.extension_pages"}))
	assert.False(t, bad.Allowed)
	assert.Contains(t, bad.Error, "Insecure CSP value \"https://example.com\" in directive 'script-src'.")
}

func TestCSPRoutes_SandboxedAndLegal(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, server.Config{})

	tests := []struct {
		policy, typ string
		want        bool
	}{
		{"sandbox allow-top-navigation", "", true},
		{"sandbox allow-top-navigation", "platform_app", false},
		{"sandbox allow-same-origin", "extension", false},
		{"script-src 'self'", "", false},
	}
	for _, tt := range tests {
		body := decode[struct {
			Sandboxed bool `json:"sandboxed"`
		}](t, do(t, srv, http.MethodPost, "/api/v1/csp/sandboxed", map[string]any{"policy": tt.policy, "type": tt.typ}))
		assert.Equal(t, tt.want, body.Sandboxed, "%s/%s", tt.policy, tt.typ)
	}

	w := do(t, srv, http.MethodPost, "/api/v1/csp/sandboxed", map[string]any{"policy": "sandbox", "type": "spaceship"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	legal := decode[struct {
		Legal bool `json:"legal"`
	}](t, do(t, srv, http.MethodPost, "/api/v1/csp/legal", map[string]any{"policy": "script-src 'self', object-src 'none'"}))
	assert.False(t, legal.Legal)
}
