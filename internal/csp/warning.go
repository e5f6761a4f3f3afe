// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package csp

import "fmt"

// Manifest keys a policy can be declared under.
const (
	KeyContentSecurityPolicy = "content_security_policy"
	KeyExtensionPages        = "content_security_policy.extension_pages"
	KeySandboxPages          = "content_security_policy.sandbox"
	KeySandboxedPagesLegacy  = "sandbox.content_security_policy"
)

// Directive names.
const (
	DirectiveDefaultSrc = "default-src"
	DirectiveScriptSrc  = "script-src"
	DirectiveObjectSrc  = "object-src"
	DirectiveWorkerSrc  = "worker-src"
	DirectiveChildSrc   = "child-src"
	DirectiveFrameSrc   = "frame-src"
	DirectiveSandbox    = "sandbox"
)

// Warning is an install-time diagnostic tied to a manifest key.
type Warning struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

func (w Warning) String() string { return w.Message }

func ignoredValueWarning(key, value, directive string) Warning {
	return Warning{
		Message: fmt.Sprintf("'%s': Ignored insecure CSP value \"%s\" in directive '%s'.", key, value, directive),
		Key:     key,
	}
}

func missingDirectiveWarning(key, directive string) Warning {
	return Warning{Message: missingDirectiveMessage(key, directive), Key: key}
}

func missingDirectiveMessage(key, directive string) string {
	return fmt.Sprintf("'%s': CSP directive '%s' must be specified (either explicitly, or "+
		"implicitly via 'default-src') and must allowlist only secure resources.", key, directive)
}

func insecureValueMessage(key, value, directive string) string {
	return fmt.Sprintf("'%s': Insecure CSP value \"%s\" in directive '%s'.", key, value, directive)
}
