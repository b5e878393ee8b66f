package pdfresolve

import (
	"net/url"
	"strings"
)

// DefaultTrustedSources is used when no trusted list is configured.
var DefaultTrustedSources = []string{
	"arxiv.org",
	"biorxiv.org",
	"medrxiv.org",
	"ncbi.nlm.nih.gov/pmc",
}

// alwaysTrusted entries are accepted regardless of configuration.
var alwaysTrusted = []string{"arxiv.org/pdf"}

type trustedEntry struct {
	host string
	path string
}

// TrustPolicy decides whether a resolved link points at a trusted host.
// Entries are "host" or "host/path-prefix"; a host matches itself and its
// subdomains.
type TrustPolicy struct {
	entries []trustedEntry
}

// NewTrustPolicy builds a policy from the given entries. An empty list falls
// back to DefaultTrustedSources.
func NewTrustPolicy(sources []string) *TrustPolicy {
	if len(sources) == 0 {
		sources = DefaultTrustedSources
	}

	p := &TrustPolicy{}
	for _, s := range append(append([]string{}, sources...), alwaysTrusted...) {
		if e, ok := parseTrustedEntry(s); ok {
			p.entries = append(p.entries, e)
		}
	}
	return p
}

func parseTrustedEntry(s string) (trustedEntry, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if s == "" {
		return trustedEntry{}, false
	}

	host, path, _ := strings.Cut(s, "/")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return trustedEntry{}, false
	}
	if path != "" {
		path = "/" + strings.TrimSuffix(path, "/")
	}
	return trustedEntry{host: host, path: path}, true
}

// IsTrusted reports whether link is an http(s) URL on a trusted host.
func (p *TrustPolicy) IsTrusted(link string) bool {
	if link == "" {
		return false
	}

	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}

	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.EscapedPath())

	for _, e := range p.entries {
		if host != e.host && !strings.HasSuffix(host, "."+e.host) {
			continue
		}
		if e.path == "" || path == e.path || strings.HasPrefix(path, e.path+"/") {
			return true
		}
	}
	return false
}

// Sources returns the configured entries in "host/path" form.
func (p *TrustPolicy) Sources() []string {
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.host+e.path)
	}
	return out
}
