// Package cachekey derives cache keys from requests.
// A key is the absolute request URL without its fragment; media URLs are
// deterministic, so the URL alone identifies the stored response.
package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ForURL returns the cache key for an absolute URL.
func ForURL(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	k.User = nil
	k.Scheme = strings.ToLower(k.Scheme)
	k.Host = strings.ToLower(k.Host)
	return k.String()
}

// Parse returns the cache key for a raw absolute URL.
func Parse(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("not an absolute url: %s", raw)
	}
	return ForURL(u), nil
}

// ForRequest returns the cache key for a request.
// Server-side requests carry no scheme or host in their URL; those are taken from the request itself.
func ForRequest(r *http.Request) string {
	return ForURL(absoluteURL(r))
}

// Resolve returns the cache key of ref (e.g. "/") relative to the request URL.
func Resolve(r *http.Request, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ForRequest(r)
	}
	return ForURL(absoluteURL(r).ResolveReference(refURL))
}

func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return &u
}
