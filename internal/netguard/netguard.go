// Package netguard validates operator-supplied endpoints before any
// credentials are sent to them, and scrubs secrets from error text.
package netguard

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Endpoint describes a remote API whose base URL may be overridden.
type Endpoint struct {
	// Name is used in error messages, e.g. "OPENROUTER_BASE_URL".
	Name         string
	DefaultURL   string
	DefaultHosts []string
}

// Normalize returns baseURL without trailing slashes, or the default.
func (e Endpoint) Normalize(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = e.DefaultURL
	}
	return strings.TrimRight(baseURL, "/")
}

// Validate requires an absolute https URL without userinfo, query or fragment
// whose host is in allowedHosts (DefaultHosts when none are configured).
func (e Endpoint) Validate(baseURL string, allowedHosts []string) error {
	baseURL = e.Normalize(baseURL)

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", e.Name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", e.Name, baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", e.Name, baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", e.Name, baseURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("invalid %s %q: host is required", e.Name, baseURL)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return fmt.Errorf("invalid %s %q: https is required", e.Name, baseURL)
	}

	allowed := Hosts(allowedHosts)
	if len(allowed) == 0 {
		allowed = Hosts(e.DefaultHosts)
	}
	if _, ok := allowed[host]; !ok {
		return fmt.Errorf("invalid %s %q: host %q is not in the allowed hosts", e.Name, baseURL, host)
	}
	return nil
}

// Hosts lower-cases and strips scheme, port and slashes from each entry.
func Hosts(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, h := range in {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;&"]+)`)
	keyParamRE    = regexp.MustCompile(`(?i)([?&]key=)([^&\s"]+)`)
)

// Redact removes the given secrets and anything shaped like a credential.
func Redact(s string, secrets ...string) string {
	if s == "" {
		return s
	}
	out := s
	for _, sec := range secrets {
		if sec != "" {
			out = strings.ReplaceAll(out, sec, "[REDACTED]")
		}
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = keyParamRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
