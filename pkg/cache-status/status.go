// Package cachestatus builds and reads the Cache-Status response header (RFC 9211)
// that the edge adds to every response it handles.
package cachestatus

import (
	"net/http"
	"strings"
)

const (
	HeaderName = "Cache-Status"
	cacheName  = "MediaEdge"
)

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdBypass FwdReason = "bypass"
	// The cache did not contain any response that matched the request URI.
	FwdUriMiss FwdReason = "uri-miss"
	// The strategy always asks the network first.
	FwdRequest FwdReason = "request"
)

// Details explain synthesized or fallback responses.
const (
	DetailPlaceholder = "placeholder"
	DetailOffline     = "offline"
	DetailShell       = "shell"
	DetailStale       = "stale"
)

type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	Stored    bool
	Detail    string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs CacheStatus) String() string {
	var b strings.Builder
	b.WriteString(cacheName)
	b.WriteString("; ")
	if cs.Status == StatusHit {
		b.WriteString(string(StatusHit))
	} else {
		b.WriteString("fwd=")
		reason := cs.FwdReason
		if reason == "" {
			reason = FwdUriMiss
		}
		b.WriteString(string(reason))
	}
	if cs.Stored {
		b.WriteString("; stored")
	}
	if cs.Detail != "" {
		b.WriteString("; detail=")
		b.WriteString(cs.Detail)
	}
	return b.String()
}

// Set replaces the Cache-Status header on h.
func (cs CacheStatus) Set(h http.Header) {
	h.Set(HeaderName, cs.String())
}

// Parse reads our own member of a Cache-Status header.
// It returns false if the header was not written by this cache.
func Parse(header string) (CacheStatus, bool) {
	var cs CacheStatus
	parts := strings.Split(header, ";")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) != cacheName {
		return cs, false
	}
	for _, p := range parts[1:] {
		name, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch name {
		case string(StatusHit):
			cs.Hit()
		case string(StatusFwd):
			cs.Forward(FwdReason(value))
		case "stored":
			cs.Stored = true
		case "detail":
			cs.Detail = value
		}
	}
	return cs, true
}

// FromResponse returns the cache status of a response handled by this cache.
func FromResponse(res *http.Response) (CacheStatus, bool) {
	return Parse(res.Header.Get(HeaderName))
}
