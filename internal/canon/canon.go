// Package canon normalizes URLs to a stable key and classifies their host
// so the citation processor can tell wiki-internal links apart from
// external ones worth fetching (C1).
package canon

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"briefly/internal/core"
)

// trackingParamPrefixes and trackingParamNames are stripped from the query
// string before canonicalization so that mirrors of the same resource with
// different campaign tags collapse to one canonical URL.
var trackingParamPrefixes = []string{"utm_"}

var trackingParamNames = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"ref_src": true,
}

var wikiHosts = map[string]bool{
	"wikipedia.org": true,
	"wikimedia.org": true,
	"wikidata.org":  true,
}

// Result is the outcome of canonicalizing and classifying a URL.
type Result struct {
	CanonicalURL   string
	Host           string
	Classification core.URLClassification
}

// Canonicalize normalizes rawURL per §4.1's ordered rule list and
// classifies its host. It never errors: a malformed URL yields a
// "blocked" classification with an empty canonical URL.
func Canonicalize(rawURL string) Result {
	trimmed := strings.TrimSpace(rawURL)

	// Relative wiki-internal links (as they appear in href attributes)
	// never carry a scheme or host; classify them before the http(s) check
	// rejects them outright.
	if strings.HasPrefix(trimmed, "./") || strings.HasPrefix(trimmed, "/wiki/") {
		return Result{CanonicalURL: trimmed, Classification: core.ClassWikipediaInternal}
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{Classification: core.ClassBlocked}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Classification: core.ClassBlocked}
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	u.Host = host
	if u.Port() != "" {
		u.Host = host + ":" + u.Port()
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""

	u.Path = collapseSlashes(u.Path)
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	u.RawQuery = cleanQuery(u.RawQuery)

	decodedPath, err := decodeUnreserved(u.EscapedPath())
	if err == nil {
		u.Path = decodedPath
		u.RawPath = ""
	}

	classification := classify(host, rawURL)

	return Result{
		CanonicalURL:   u.String(),
		Host:           host,
		Classification: classification,
	}
}

func classify(host, rawURL string) core.URLClassification {
	if strings.HasPrefix(rawURL, "./") || strings.HasPrefix(rawURL, "/wiki/") {
		return core.ClassWikipediaInternal
	}
	for wikiHost := range wikiHosts {
		if host == wikiHost || strings.HasSuffix(host, "."+wikiHost) {
			if wikiHost == "wikipedia.org" {
				return core.ClassWikipediaInternal
			}
			return core.ClassWikimedia
		}
	}
	return core.ClassExternal
}

func collapseSlashes(path string) string {
	var b strings.Builder
	prevSlash := false
	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func cleanQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}

	kept := url.Values{}
	for key, vals := range values {
		if isTrackingParam(key) {
			continue
		}
		kept[key] = vals
	}

	if len(kept) == 0 {
		return ""
	}

	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		for _, v := range kept[k] {
			parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(v)))
		}
	}
	return strings.Join(parts, "&")
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if trackingParamNames[lower] {
		return true
	}
	for _, prefix := range trackingParamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// decodeUnreserved percent-decodes only the RFC 3986 unreserved character
// class (letters, digits, '-', '.', '_', '~'), leaving reserved characters
// percent-encoded so the path's structural meaning is preserved.
func decodeUnreserved(path string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '%' && i+2 < len(path) {
			decoded, err := url.PathUnescape(path[i : i+3])
			if err == nil && len(decoded) == 1 && isUnreserved(decoded[0]) {
				b.WriteString(decoded)
				i += 2
				continue
			}
		}
		b.WriteByte(path[i])
	}
	return b.String(), nil
}

func isUnreserved(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	default:
		return false
	}
}
