// Package dedup filters previously-delivered detail URLs against a
// per-user persistent set.
package dedup

import (
	"net/url"
	"regexp"
	"strings"
)

// placeIDPattern captures the place identifier out of the compound
// "data" segment carried by detail URLs.
var placeIDPattern = regexp.MustCompile(`1s([^!]+)!`)

// NormalizeURL reduces a detail URL to its stable identity. The data
// segment appears either as a path suffix ("/data=!...") or as a query
// parameter; when it carries a place identifier the URL is collapsed to
// a canonical form so the same place always hashes to the same set
// member, otherwise only the data segment is preserved. Unparseable
// URLs are returned unchanged. Normalization is idempotent.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	origin := parsed.Scheme + "://" + parsed.Host
	path := parsed.Path
	data := parsed.Query().Get("data")

	if idx := strings.Index(path, "/data="); idx >= 0 {
		data = path[idx+len("/data="):]
		path = path[:idx]
	}

	if m := placeIDPattern.FindStringSubmatch(data); m != nil {
		return origin + path + "?data=!4m7!3m6!1s" + m[1]
	}
	if data != "" {
		return origin + path + "?data=" + data
	}
	return origin + path
}
