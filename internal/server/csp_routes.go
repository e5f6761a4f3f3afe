// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/extpolicy/internal/csp"
	"github.com/sigil-dev/extpolicy/pkg/types"
)

// CSPDefaults seed CSP requests that leave the manifest key or options unset.
type CSPDefaults struct {
	ManifestKey            string
	AllowUnsafeEval        bool
	AllowInsecureObjectSrc bool
}

func (d CSPDefaults) options(unsafeEval, insecureObject *bool) csp.Options {
	opts := csp.OptionsNone
	if pick(unsafeEval, d.AllowUnsafeEval) {
		opts |= csp.OptionsAllowUnsafeEval
	}
	if pick(insecureObject, d.AllowInsecureObjectSrc) {
		opts |= csp.OptionsAllowInsecureObjectSrc
	}
	return opts
}

func (d CSPDefaults) key(k string) string {
	if k != "" {
		return k
	}
	if d.ManifestKey != "" {
		return d.ManifestKey
	}
	return "content_security_policy"
}

func pick(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}

func (s *Server) registerCSPRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "csp-sanitize",
		Method:      http.MethodPost,
		Path:        "/api/v1/csp/sanitize",
		Summary:     "Rewrite an extension-pages policy to secure sources",
		Tags:        []string{"csp"},
	}, s.handleSanitize)

	huma.Register(s.api, huma.Operation{
		OperationID: "csp-sandbox",
		Method:      http.MethodPost,
		Path:        "/api/v1/csp/sandbox",
		Summary:     "Rewrite a sandboxed-pages policy to disallow remote sources",
		Tags:        []string{"csp"},
	}, s.handleSandbox)

	huma.Register(s.api, huma.Operation{
		OperationID: "csp-remote-code",
		Method:      http.MethodPost,
		Path:        "/api/v1/csp/remote-code",
		Summary:     "Check that a policy disallows remote code",
		Tags:        []string{"csp"},
	}, s.handleRemoteCode)

	huma.Register(s.api, huma.Operation{
		OperationID: "csp-sandboxed",
		Method:      http.MethodPost,
		Path:        "/api/v1/csp/sandboxed",
		Summary:     "Check whether a policy sandboxes the page",
		Tags:        []string{"csp"},
	}, s.handleSandboxed)

	huma.Register(s.api, huma.Operation{
		OperationID: "csp-legal",
		Method:      http.MethodPost,
		Path:        "/api/v1/csp/legal",
		Summary:     "Check that a policy is a legal header value",
		Tags:        []string{"csp"},
	}, s.handleLegal)
}

type sanitizeInput struct {
	Body struct {
		Policy                 string `json:"policy" doc:"Content Security Policy"`
		ManifestKey            string `json:"manifest_key,omitempty" doc:"Manifest key named in warnings"`
		AllowUnsafeEval        *bool  `json:"allow_unsafe_eval,omitempty" doc:"Permit 'unsafe-eval' in script-src"`
		AllowInsecureObjectSrc *bool  `json:"allow_insecure_object_src,omitempty" doc:"Leave object-src unrestricted"`
	}
}

type sandboxInput struct {
	Body struct {
		Policy      string `json:"policy" doc:"Content Security Policy"`
		ManifestKey string `json:"manifest_key,omitempty" doc:"Manifest key named in warnings"`
	}
}

type rewriteOutput struct {
	Body struct {
		Policy   string   `json:"policy" doc:"Rewritten policy"`
		Warnings []string `json:"warnings" doc:"Why parts of the input were changed"`
	}
}

type remoteCodeOutput struct {
	Body struct {
		Allowed bool   `json:"allowed" doc:"Whether the policy disallows remote code"`
		Error   string `json:"error,omitempty" doc:"First violation found"`
	}
}

type sandboxedInput struct {
	Body struct {
		Policy string `json:"policy" doc:"Content Security Policy"`
		Type   string `json:"type,omitempty" doc:"Manifest type, e.g. extension or platform_app"`
	}
}

type sandboxedOutput struct {
	Body struct {
		Sandboxed bool `json:"sandboxed" doc:"Whether the page runs in a unique origin"`
	}
}

type legalOutput struct {
	Body struct {
		Legal bool `json:"legal" doc:"Whether the policy can be sent as a header"`
	}
}

func rewritten(policy string, warnings []csp.Warning) *rewriteOutput {
	out := &rewriteOutput{}
	out.Body.Policy = policy
	out.Body.Warnings = make([]string, 0, len(warnings))
	for _, w := range warnings {
		out.Body.Warnings = append(out.Body.Warnings, w.Message)
	}
	return out
}

func (s *Server) handleSanitize(_ context.Context, input *sanitizeInput) (*rewriteOutput, error) {
	d := s.cfg.CSP
	return rewritten(csp.SanitizeContentSecurityPolicy(
		input.Body.Policy,
		d.key(input.Body.ManifestKey),
		d.options(input.Body.AllowUnsafeEval, input.Body.AllowInsecureObjectSrc),
	)), nil
}

func (s *Server) handleSandbox(_ context.Context, input *sandboxInput) (*rewriteOutput, error) {
	return rewritten(csp.SandboxedPageCSPDisallowingRemoteSources(
		input.Body.Policy, s.cfg.CSP.key(input.Body.ManifestKey),
	)), nil
}

func (s *Server) handleRemoteCode(_ context.Context, input *sandboxInput) (*remoteCodeOutput, error) {
	out := &remoteCodeOutput{}
	if err := csp.DisallowsRemoteCode(input.Body.Policy, s.cfg.CSP.key(input.Body.ManifestKey)); err != nil {
		out.Body.Error = err.Error()
		return out, nil
	}
	out.Body.Allowed = true
	return out, nil
}

func (s *Server) handleSandboxed(_ context.Context, input *sandboxedInput) (*sandboxedOutput, error) {
	t := types.ManifestTypeExtension
	if input.Body.Type != "" {
		t = types.ParseManifestType(input.Body.Type)
		if t == types.ManifestTypeUnknown {
			return nil, huma.Error400BadRequest("unknown manifest type " + input.Body.Type)
		}
	}
	out := &sandboxedOutput{}
	out.Body.Sandboxed = csp.IsSandboxed(input.Body.Policy, t)
	return out, nil
}

func (s *Server) handleLegal(_ context.Context, input *sandboxInput) (*legalOutput, error) {
	out := &legalOutput{}
	out.Body.Legal = csp.IsLegal(input.Body.Policy)
	return out, nil
}
