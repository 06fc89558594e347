package normalize

import (
	"errors"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

var (
	// ErrInvalidURL indicates the provided string is not a capturable http(s) URL.
	ErrInvalidURL = errors.New("invalid URL")
)

// dropQueryKeys are tracking parameters removed from every query string.
// Any key starting with "utm_" is dropped as well. Matching is case-sensitive.
var dropQueryKeys = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"ref_url": {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// URL canonicalizes raw into the key used to deduplicate items.
// It never fails: input that cannot be parsed as an absolute URL with a host
// is returned trimmed but otherwise unchanged. A query that does not parse
// as key/value pairs is kept verbatim.
//
//	"HTTPS://Example.com:443/a?utm_source=x&b=2#top" -> "https://example.com/a?b=2"
func URL(raw string) string {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return s
	}
	// url.Parse already lower-cases the scheme.
	scheme := u.Scheme
	host := canonicalHost(u.Hostname())
	if host == "" {
		return s
	}
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	query, ok := canonicalQuery(u.RawQuery)
	if !ok {
		query = u.RawQuery
	}

	var sb strings.Builder
	sb.WriteString(scheme)
	sb.WriteString("://")
	sb.WriteString(host)
	sb.WriteString(path)
	if query != "" {
		sb.WriteByte('?')
		sb.WriteString(query)
	}
	return sb.String()
}

// Domain returns the host (without port) of a normalized URL, or "" when
// the value has no host.
func Domain(norm string) string {
	u, err := url.Parse(norm)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Validate reports whether raw is acceptable for capture: an http or https
// URL with a plausible host name.
func Validate(raw string) error {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ErrInvalidURL
	}
	u, err := url.Parse(s)
	if err != nil {
		return ErrInvalidURL
	}
	host := u.Hostname()
	if host == "" {
		return ErrInvalidURL
	}
	if _, ok := dns.IsDomainName(host); !ok {
		return ErrInvalidURL
	}
	return nil
}

// canonicalHost lower-cases the host and converts internationalized names to
// their ASCII form. Hosts IDNA rejects (IP literals, underscores) are only
// lower-cased.
func canonicalHost(host string) string {
	host = strings.ToLower(host)
	if host == "" || strings.Contains(host, ":") {
		return host
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return host
	}
	return strings.ToLower(ascii)
}

// canonicalQuery drops tracking keys and re-encodes the remaining pairs
// sorted by key, then value. Blank values are kept.
func canonicalQuery(raw string) (string, bool) {
	if raw == "" {
		return "", true
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "", false
	}
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(values))
	for k, vs := range values {
		if isTrackingKey(k) {
			continue
		}
		for _, v := range vs {
			pairs = append(pairs, pair{k, v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.v))
	}
	return sb.String(), true
}

func isTrackingKey(k string) bool {
	if strings.HasPrefix(k, "utm_") {
		return true
	}
	_, ok := dropQueryKeys[k]
	return ok
}
