package core

import (
	"net/http"
	"regexp"
	"strings"

	cachekey "github.com/always-cache/media-edge/pkg/cache-key"
)

// DefaultMediaHosts are host substrings of known image hosting domains.
var DefaultMediaHosts = []string{"picsum", "amazonaws.com"}

// MediaSources identifies media hosting, by host substring or by URL prefix.
// Prefixes are for media served from a path of a host that also serves pages.
type MediaSources struct {
	Hosts    []string
	Prefixes []string
}

var mediaExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg|mp4|webm|mov)$`)

// Class is the resource class of an intercepted request.
type Class int

const (
	ClassPassthrough Class = iota
	ClassMedia
	ClassStatic
	ClassNavigation
)

func (c Class) String() string {
	switch c {
	case ClassMedia:
		return "media"
	case ClassStatic:
		return "static"
	case ClassNavigation:
		return "navigation"
	}
	return "passthrough"
}

// Classify returns the class of a request.
// Rules are tried in order media, static asset, navigation; the first match wins.
func Classify(req *http.Request, sources MediaSources) Class {
	switch {
	case isMedia(req, sources):
		return ClassMedia
	case isStaticAsset(req):
		return ClassStatic
	case req.Header.Get("Sec-Fetch-Mode") == "navigate":
		return ClassNavigation
	}
	return ClassPassthrough
}

func isMedia(req *http.Request, sources MediaSources) bool {
	switch req.Header.Get("Sec-Fetch-Dest") {
	case "image", "video":
		return true
	}
	if mediaExt.MatchString(req.URL.Path) {
		return true
	}
	host := strings.ToLower(req.URL.Hostname())
	if host == "" {
		host = strings.ToLower(req.Host)
	}
	for _, h := range sources.Hosts {
		if h != "" && strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	if len(sources.Prefixes) > 0 {
		key := cachekey.ForRequest(req)
		for _, p := range sources.Prefixes {
			if p != "" && strings.HasPrefix(key, p) {
				return true
			}
		}
	}
	return false
}

func isStaticAsset(req *http.Request) bool {
	p := req.URL.Path
	return strings.HasPrefix(p, "/_next/static/") ||
		strings.Contains(p, ".css") ||
		strings.Contains(p, ".js") ||
		p == "/manifest.json"
}
