// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package csp

import "strings"

// Options relax the extension-pages policy.
type Options int

const (
	OptionsNone                   Options = 0
	OptionsAllowUnsafeEval        Options = 1 << 0
	OptionsAllowInsecureObjectSrc Options = 1 << 1
)

func (o Options) Has(flag Options) bool { return o&flag != 0 }

var hashSourcePrefixes = []string{"'sha256-", "'sha384-", "'sha512-"}

// SanitizeContentSecurityPolicy rewrites an extension-pages policy so that
// script-src (and object-src unless insecure object sources are allowed)
// only permit secure sources.
func SanitizeContentSecurityPolicy(policy, manifestKey string, opts Options) (string, []Warning) {
	directives := [][]string{{DirectiveScriptSrc}}
	if !opts.Has(OptionsAllowInsecureObjectSrc) {
		directives = append(directives, []string{DirectiveObjectSrc})
	}
	e := &Enforcer{
		manifestKey: manifestKey,
		showMissing: true,
		directives:  directives,
		secureValues: func(name string, values []string, warn bool) (string, []Warning) {
			return extensionSecureValues(manifestKey, name, values, opts, warn)
		},
		defaultValue: func(names []string) string {
			return names[0] + " 'self';"
		},
	}
	return e.Enforce(Parse(policy))
}

// SandboxedPageCSPDisallowingRemoteSources rewrites a sandboxed-pages policy
// so that frames and scripts cannot load remote content. Missing directives
// are synthesized silently.
func SandboxedPageCSPDisallowingRemoteSources(policy, manifestKey string) (string, []Warning) {
	e := &Enforcer{
		manifestKey: manifestKey,
		showMissing: false,
		directives: [][]string{
			{DirectiveChildSrc, DirectiveFrameSrc},
			{DirectiveScriptSrc},
		},
		secureValues: func(name string, values []string, warn bool) (string, []Warning) {
			return sandboxSecureValues(manifestKey, name, values, warn)
		},
		defaultValue: func(names []string) string {
			if names[0] == DirectiveScriptSrc {
				return "script-src 'self' 'unsafe-inline' 'unsafe-eval';"
			}
			return names[0] + " 'self';"
		},
	}
	return e.Enforce(Parse(policy))
}

func extensionSecureValues(key, name string, values []string, opts Options, warn bool) (string, []Warning) {
	parts := []string{name}
	var warnings []Warning
	for _, literal := range values {
		if isSecureExtensionSource(literal, opts) {
			parts = append(parts, literal)
			continue
		}
		if warn {
			warnings = append(warnings, ignoredValueWarning(key, literal, name))
		}
	}
	return strings.Join(parts, " ") + ";", warnings
}

func isSecureExtensionSource(literal string, opts Options) bool {
	lower := strings.ToLower(literal)
	switch lower {
	case "'self'", "'none'", "'wasm-eval'", "'wasm-unsafe-eval'", "blob:", "filesystem:":
		return true
	case "'unsafe-eval'":
		return opts.Has(OptionsAllowUnsafeEval)
	}
	return IsLocalHostSource(lower) ||
		IsNonWildcardTLD(lower, "https://", true) ||
		IsNonWildcardTLD(lower, "chrome://", false) ||
		IsNonWildcardTLD(lower, "chrome-extension://", false) ||
		IsHashSource(literal)
}

func sandboxSecureValues(key, name string, values []string, warn bool) (string, []Warning) {
	parts := []string{name}
	var warnings []Warning
	seenSelfOrNone := false
	for _, literal := range values {
		lower := strings.ToLower(literal)
		// Quoted keyword sources never name a remote host.
		if len(lower) > 1 && lower[0] == '\'' && lower[len(lower)-1] == '\'' {
			seenSelfOrNone = seenSelfOrNone || lower == "'none'" || lower == "'self'"
			parts = append(parts, lower)
			continue
		}
		if warn {
			warnings = append(warnings, ignoredValueWarning(key, literal, name))
		}
	}
	if !seenSelfOrNone {
		parts = append(parts, "'self'")
	}
	return strings.Join(parts, " ") + ";", warnings
}

// IsHashSource reports whether source is a quoted sha256/384/512 hash with a
// base64 body.
func IsHashSource(source string) bool {
	if len(source) == 0 || source[len(source)-1] != '\'' {
		return false
	}
	lower := strings.ToLower(source)
	for _, prefix := range hashSourcePrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		for i := len(prefix); i < len(source)-1; i++ {
			if !isBase64Char(source[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func isBase64Char(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '+' || c == '/' || c == '='
}
