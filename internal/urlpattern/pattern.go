// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package urlpattern implements extension match patterns of the form
// <scheme>://<host><path> and the special <all_urls> pattern.
//
// Host wildcards are only accepted as the whole host ("*") or as a leading
// "*." subdomain prefix. In paths, "*" matches any run of characters
// (including "/"); every other character, "?" and "\" included, is literal.
package urlpattern

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// AllURLs is the pattern that matches every URL with a valid scheme.
const AllURLs = "<all_urls>"

// SchemeMask is a bit set of schemes a pattern may use.
type SchemeMask int

const (
	SchemeHTTP SchemeMask = 1 << iota
	SchemeHTTPS
	SchemeFile
	SchemeFTP
	SchemeChromeUI
	SchemeExtension
	SchemeFileSystem
	SchemeWS
	SchemeWSS
	SchemeData
	SchemeUUIDInPackage

	// SchemeAll accepts every scheme, including ones without a bit above.
	SchemeAll SchemeMask = -1

	// SchemesForExtensions is the mask used for policy host restrictions.
	SchemesForExtensions = SchemeHTTP | SchemeHTTPS | SchemeFile | SchemeFTP |
		SchemeChromeUI | SchemeExtension | SchemeFileSystem | SchemeWS | SchemeWSS |
		SchemeData | SchemeUUIDInPackage
)

// ExtensionScheme is the URL scheme of extension resources.
const ExtensionScheme = "chrome-extension"

var schemeBits = map[string]SchemeMask{
	"http":            SchemeHTTP,
	"https":           SchemeHTTPS,
	"file":            SchemeFile,
	"ftp":             SchemeFTP,
	"chrome":          SchemeChromeUI,
	ExtensionScheme:   SchemeExtension,
	"filesystem":      SchemeFileSystem,
	"ws":              SchemeWS,
	"wss":             SchemeWSS,
	"data":            SchemeData,
	"uuid-in-package": SchemeUUIDInPackage,
}

// standardSchemes use the "://" separator and carry a host.
var standardSchemes = map[string]bool{
	"*":             true,
	"http":          true,
	"https":         true,
	"file":          true,
	"ftp":           true,
	"chrome":        true,
	ExtensionScheme: true,
	"filesystem":    true,
	"ws":            true,
	"wss":           true,
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// portSchemes may carry an explicit port in a pattern.
var portSchemes = map[string]bool{
	"*":     true,
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
	"ftp":   true,
}

// ParseResult classifies a pattern parse failure.
type ParseResult string

const (
	ResultMissingSchemeSeparator ParseResult = "missing_scheme_separator"
	ResultInvalidScheme          ParseResult = "invalid_scheme"
	ResultWrongSchemeSeparator   ParseResult = "wrong_scheme_separator"
	ResultEmptyHost              ParseResult = "empty_host"
	ResultInvalidHostWildcard    ParseResult = "invalid_host_wildcard"
	ResultEmptyPath              ParseResult = "empty_path"
	ResultInvalidPort            ParseResult = "invalid_port"
	ResultInvalidHost            ParseResult = "invalid_host"
)

var resultMessages = map[ParseResult]string{
	ResultMissingSchemeSeparator: "missing scheme separator",
	ResultInvalidScheme:          "invalid scheme",
	ResultWrongSchemeSeparator:   "wrong scheme type",
	ResultEmptyHost:              "empty host",
	ResultInvalidHostWildcard:    "invalid host wildcard",
	ResultEmptyPath:              "empty path",
	ResultInvalidPort:            "invalid port",
	ResultInvalidHost:            "invalid host",
}

// ResultOf extracts the ParseResult from an error returned by Parse.
// It returns "" for nil or unrelated errors.
func ResultOf(err error) ParseResult {
	if err == nil {
		return ""
	}
	if r, ok := sigilerr.FieldsOf(err)["result"].(ParseResult); ok {
		return r
	}
	return ""
}

// Pattern is a parsed match pattern. The zero value matches nothing.
type Pattern struct {
	validSchemes    SchemeMask
	matchAll        bool
	scheme          string
	host            string
	matchSubdomains bool
	port            string
	path            string
	pathGlob        glob.Glob
}

// Parse parses pattern, accepting only schemes in valid.
func Parse(valid SchemeMask, pattern string) (*Pattern, error) {
	p := &Pattern{validSchemes: valid, port: "*"}
	if r := p.parse(pattern); r != "" {
		return nil, sigilerr.New(sigilerr.CodeURLPatternParseInvalidFormat,
			"parsing url pattern "+strconv.Quote(pattern)+": "+resultMessages[r],
			sigilerr.Field("pattern", pattern),
			sigilerr.Field("result", r),
		)
	}
	return p, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level tables.
func MustParse(valid SchemeMask, pattern string) *Pattern {
	p, err := Parse(valid, pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) parse(pattern string) ParseResult {
	if pattern == AllURLs {
		p.matchAll = true
		p.scheme = "*"
		p.matchSubdomains = true
		return p.setPath("/*")
	}

	sep := strings.IndexByte(pattern, ':')
	if sep < 0 {
		return ResultMissingSchemeSeparator
	}
	p.scheme = strings.ToLower(pattern[:sep])
	if !p.IsValidScheme(p.scheme) {
		return ResultInvalidScheme
	}

	hasAuthority := strings.HasPrefix(pattern[sep:], "://")
	if !standardSchemes[p.scheme] {
		if hasAuthority {
			return ResultWrongSchemeSeparator
		}
		return p.setPath(pattern[sep+1:])
	}
	if !hasAuthority {
		return ResultWrongSchemeSeparator
	}

	rest := pattern[sep+3:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		if rest == "" {
			return ResultEmptyHost
		}
		return ResultEmptyPath
	}
	hostPort, path := rest[:slash], rest[slash:]

	if p.scheme == "file" {
		// File URLs have no meaningful host or port.
		return p.setPath(path)
	}

	host, port, r := splitHostPort(hostPort)
	if r != "" {
		return r
	}
	if port != "" {
		if !portSchemes[p.scheme] || !validPort(port) {
			return ResultInvalidPort
		}
		p.port = port
	}

	if host == "*" {
		p.matchSubdomains = true
		host = ""
	} else if strings.HasPrefix(host, "*.") {
		p.matchSubdomains = true
		host = host[2:]
		if host == "" {
			return ResultEmptyHost
		}
	} else if host == "" {
		return ResultEmptyHost
	}
	if strings.Contains(host, "*") {
		return ResultInvalidHostWildcard
	}
	if strings.ContainsAny(host, "\x00 \t\r\n#?@\\") {
		return ResultInvalidHost
	}
	p.host = strings.ToLower(host)

	return p.setPath(path)
}

func splitHostPort(hostPort string) (host, port string, r ParseResult) {
	if strings.HasPrefix(hostPort, "[") {
		end := strings.IndexByte(hostPort, ']')
		if end < 0 {
			return "", "", ResultInvalidHost
		}
		host = hostPort[:end+1]
		inner := hostPort[1:end]
		tail := hostPort[end+1:]
		switch {
		case tail == "":
		case strings.HasPrefix(tail, ":"):
			port = tail[1:]
			if port == "" {
				return "", "", ResultInvalidPort
			}
		default:
			return "", "", ResultInvalidHost
		}
		if inner == "" {
			return "", "", ResultEmptyHost
		}
		if ip := net.ParseIP(inner); ip == nil || ip.To4() != nil {
			return "", "", ResultInvalidHost
		}
		return host, port, ""
	}

	switch strings.Count(hostPort, ":") {
	case 0:
		return hostPort, "", ""
	case 1:
		i := strings.IndexByte(hostPort, ':')
		port = hostPort[i+1:]
		if port == "" {
			return "", "", ResultInvalidPort
		}
		return hostPort[:i], port, ""
	default:
		return "", "", ResultInvalidPort
	}
}

func validPort(port string) bool {
	if port == "*" {
		return true
	}
	if len(port) > 5 {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 0 && n <= 65535 && !strings.ContainsAny(port, "+-")
}

func (p *Pattern) setPath(path string) ParseResult {
	pieces := strings.Split(path, "*")
	for i, piece := range pieces {
		pieces[i] = glob.QuoteMeta(piece)
	}
	g, err := glob.Compile(strings.Join(pieces, "*"))
	if err != nil {
		return ResultEmptyPath
	}
	p.path = path
	p.pathGlob = g
	return ""
}

// Scheme returns the pattern scheme ("*" for wildcard and <all_urls>).
func (p *Pattern) Scheme() string { return p.scheme }

// Host returns the host without any "*." prefix.
func (p *Pattern) Host() string { return p.host }

// Port returns the port, "*" when unrestricted.
func (p *Pattern) Port() string { return p.port }

// Path returns the path glob.
func (p *Pattern) Path() string { return p.path }

// MatchSubdomains reports whether the host carries a wildcard.
func (p *Pattern) MatchSubdomains() bool { return p.matchSubdomains }

// MatchAllURLs reports whether the pattern is <all_urls>.
func (p *Pattern) MatchAllURLs() bool { return p.matchAll }

// IsValidScheme reports whether scheme is permitted by the pattern's mask.
func (p *Pattern) IsValidScheme(scheme string) bool {
	if p.validSchemes == SchemeAll {
		return true
	}
	if scheme == "*" {
		return p.validSchemes&(SchemeHTTP|SchemeHTTPS) != 0
	}
	bit, ok := schemeBits[scheme]
	return ok && p.validSchemes&bit != 0
}

// MatchesScheme reports whether scheme satisfies the pattern.
func (p *Pattern) MatchesScheme(scheme string) bool {
	if !p.IsValidScheme(scheme) {
		return false
	}
	if p.matchAll {
		return true
	}
	if p.scheme == "*" {
		return scheme == "http" || scheme == "https"
	}
	return scheme == p.scheme
}

// MatchesHost reports whether host satisfies the pattern host.
func (p *Pattern) MatchesHost(host string) bool {
	host = strings.ToLower(host)
	if p.matchSubdomains && p.host == "" {
		return true
	}
	if host == p.host {
		return true
	}
	if !p.matchSubdomains {
		return false
	}
	// Subdomain matching is never done on IP addresses.
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return false
	}
	if len(host) <= len(p.host) || !strings.HasSuffix(host, p.host) {
		return false
	}
	return host[len(host)-len(p.host)-1] == '.'
}

// MatchesPort reports whether port satisfies the pattern for scheme. An empty
// port means the scheme default.
func (p *Pattern) MatchesPort(scheme, port string) bool {
	if p.port == "*" {
		return true
	}
	if port == "" {
		port = defaultPorts[scheme]
	}
	return port == p.port
}

// MatchesPath reports whether path (with any "?query" suffix) satisfies the
// pattern path. A pattern path of "<test>/*" also matches "<test>".
func (p *Pattern) MatchesPath(path string) bool {
	if p.pathGlob == nil {
		return false
	}
	if len(path)+2 == len(p.path) && strings.HasPrefix(p.path, path) && strings.HasSuffix(p.path, "/*") {
		return true
	}
	return p.pathGlob.Match(path)
}

// MatchesURL reports whether u satisfies the pattern. filesystem: URLs are
// matched on their inner URL.
func (p *Pattern) MatchesURL(u *url.URL) bool {
	if u == nil || p.scheme == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "filesystem" && u.Opaque != "" {
		inner, err := url.Parse(u.Opaque)
		if err != nil || strings.EqualFold(inner.Scheme, "filesystem") {
			return false
		}
		return p.MatchesURL(inner)
	}
	if !p.MatchesScheme(scheme) {
		return false
	}
	if p.matchAll {
		return true
	}
	return p.matchesComponents(scheme, u)
}

func (p *Pattern) matchesComponents(scheme string, u *url.URL) bool {
	if u.Opaque != "" {
		return p.host == "" && p.MatchesPath(u.Opaque)
	}
	if scheme != "file" {
		host := u.Hostname()
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		if !p.MatchesHost(host) {
			return false
		}
		if !p.MatchesPort(scheme, u.Port()) {
			return false
		}
	}
	return p.MatchesPath(pathForRequest(u))
}

func pathForRequest(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" || u.ForceQuery {
		path += "?" + u.RawQuery
	}
	return path
}

// MatchesString parses raw and matches it. Unparsable URLs never match.
func (p *Pattern) MatchesString(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return p.MatchesURL(u)
}

// String returns the canonical pattern text.
func (p *Pattern) String() string {
	if p.matchAll {
		return AllURLs
	}
	if !standardSchemes[p.scheme] {
		return p.scheme + ":" + p.path
	}
	var b strings.Builder
	b.WriteString(p.scheme)
	b.WriteString("://")
	if p.matchSubdomains {
		b.WriteString("*")
		if p.host != "" {
			b.WriteString(".")
		}
	}
	b.WriteString(p.host)
	if p.port != "*" {
		b.WriteString(":")
		b.WriteString(p.port)
	}
	b.WriteString(p.path)
	return b.String()
}
