// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package csp

import (
	"net"
	"strings"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/types"
	"golang.org/x/net/publicsuffix"
)

const (
	tokenAllowSameOrigin    = "allow-same-origin"
	tokenAllowTopNavigation = "allow-top-navigation"
)

// IsLegal reports whether policy can be sent as a header value.
func IsLegal(policy string) bool {
	return !strings.ContainsAny(policy, ",\r\n\x00")
}

// CheckLegal is IsLegal returning a typed error.
func CheckLegal(policy, manifestKey string) error {
	if IsLegal(policy) {
		return nil
	}
	return sigilerr.New(sigilerr.CodeCSPValidateIllegalCharacter,
		"'"+manifestKey+"': Invalid value: policy contains a header-injection character",
		sigilerr.FieldManifestKey(manifestKey))
}

// IsLocalHostSource reports whether source is an http localhost origin,
// optionally with a port.
func IsLocalHostSource(source string) bool {
	for _, origin := range []string{"http://localhost", "http://127.0.0.1"} {
		if source == origin || strings.HasPrefix(source, origin+":") {
			return true
		}
	}
	return false
}

// IsNonWildcardTLD reports whether source, which must begin with
// schemeAndSeparator, names a host that is not a global wildcard. With
// checkRegistry set, a "*." wildcard must sit atop a registrable domain so
// patterns like "*.co.uk" are rejected.
func IsNonWildcardTLD(source, schemeAndSeparator string, checkRegistry bool) bool {
	if !strings.HasPrefix(source, schemeAndSeparator) {
		return false
	}
	startOfHost := len(schemeAndSeparator)
	endOfHost := strings.IndexByte(source[startOfHost:], '/')
	if endOfHost < 0 {
		endOfHost = len(source)
	} else {
		endOfHost += startOfHost
	}

	// Wildcards are only allowed as the first host label.
	isWildcardSubdomain := endOfHost > startOfHost+2 &&
		source[startOfHost] == '*' && source[startOfHost+1] == '.'
	if isWildcardSubdomain {
		startOfHost += 2
	}

	// A ':' preceded by another ':' is part of an IPv6 address, not a port.
	if startOfPort := strings.LastIndexByte(source[:endOfHost], ':'); startOfPort > startOfHost && source[startOfPort-1] != ':' {
		validPort := false
		for i := startOfPort + 1; i < endOfHost; i++ {
			validPort = isDigit(source[i]) || source[i] == '*'
			if !validPort {
				break
			}
		}
		if validPort {
			endOfHost = startOfPort
		}
	}

	host := source[startOfHost:endOfHost]
	if host == "" || strings.Contains(host, "*") {
		return false
	}
	if !isWildcardSubdomain || !checkRegistry {
		return true
	}
	if host == "googleapis.com" {
		return true
	}
	return hasRegistrableDomain(host)
}

// hasRegistrableDomain reports whether host sits below a public suffix. Hosts
// under unlisted TLDs are treated as registries.
func hasRegistrableDomain(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return false
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(host)
	return err == nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// DisallowsRemoteCode returns nil when script-src (falling back to
// default-src), worker-src (falling back to script-src) and object-src only
// allow local sources. Only the first occurrence of each directive counts.
func DisallowsRemoteCode(policy, manifestKey string) error {
	directives := Parse(policy)

	script, ok := First(directives, DirectiveScriptSrc)
	if !ok {
		script, ok = First(directives, DirectiveDefaultSrc)
	}
	if !ok {
		return sigilerr.New(sigilerr.CodeCSPValidateMissingDirective,
			missingDirectiveMessage(manifestKey, DirectiveScriptSrc),
			sigilerr.FieldManifestKey(manifestKey),
			sigilerr.FieldDirective(DirectiveScriptSrc))
	}
	if err := checkLocalOnly(script, manifestKey); err != nil {
		return err
	}
	if worker, ok := First(directives, DirectiveWorkerSrc); ok {
		if err := checkLocalOnly(worker, manifestKey); err != nil {
			return err
		}
	}
	if object, ok := First(directives, DirectiveObjectSrc); ok {
		if err := checkLocalOnly(object, manifestKey); err != nil {
			return err
		}
	}
	return nil
}

func checkLocalOnly(d Directive, manifestKey string) error {
	for _, literal := range d.Values {
		lower := strings.ToLower(literal)
		switch {
		case lower == "'self'", lower == "'none'", lower == "'wasm-unsafe-eval'":
		case IsLocalHostSource(lower):
		default:
			return sigilerr.New(sigilerr.CodeCSPValidateInsecureValue,
				insecureValueMessage(manifestKey, literal, d.Name),
				sigilerr.FieldManifestKey(manifestKey),
				sigilerr.FieldDirective(d.Name),
				sigilerr.Field("value", literal))
		}
	}
	return nil
}

// IsSandboxed reports whether policy carries a sandbox directive that keeps
// the page in a unique origin. Platform apps additionally may not allow top
// navigation.
func IsSandboxed(policy string, t types.ManifestType) bool {
	seen := false
	for _, d := range Parse(policy) {
		if d.Name != DirectiveSandbox {
			continue
		}
		seen = true
		for _, token := range d.Values {
			switch strings.ToLower(token) {
			case tokenAllowSameOrigin:
				return false
			case tokenAllowTopNavigation:
				if t == types.ManifestTypePlatformApp {
					return false
				}
			}
		}
	}
	return seen
}
