// Package locator maps a day, region and language to the URL of the media of the day.
//
// Everything here is pure: the same inputs always produce byte-identical URLs,
// which lets the cache use the URL itself as the cache key.
package locator

import (
	"path"
	"strings"
)

// Kind is the media kind of a resolved resource.
type Kind int

const (
	KindStatic Kind = iota
	KindAnimatedGIF
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAnimatedGIF:
		return "animated-gif"
	case KindVideo:
		return "video"
	}
	return "static-image"
}

// Ext returns the URL extension for the kind, including the dot.
// Static images have no extension.
func (k Kind) Ext() string {
	switch k {
	case KindAnimatedGIF:
		return ".gif"
	case KindVideo:
		return ".mp4"
	}
	return ""
}

// Animated reports whether the kind is an animation or video.
func (k Kind) Animated() bool {
	return k != KindStatic
}

var animatedExts = map[string]Kind{
	".gif":  KindAnimatedGIF,
	".mp4":  KindVideo,
	".webm": KindVideo,
	".mov":  KindVideo,
}

// KindFromURL classifies a media URL by its extension.
func KindFromURL(u string) Kind {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	if k, ok := animatedExts[strings.ToLower(path.Ext(u))]; ok {
		return k
	}
	return KindStatic
}

// MediaKey identifies one media of the day. It is always derived from inputs.
type MediaKey struct {
	Day      Day
	Region   Region
	Language string
	Kind     Kind
}

type Locator struct {
	// BaseURL all media URLs are built on, without a trailing slash.
	BaseURL string
	// Animated is the kind to use when an animation is preferred.
	// The zero value (KindStatic) means KindVideo.
	Animated Kind
}

// New returns a Locator for the given base URL.
func New(baseURL string) Locator {
	return Locator{BaseURL: strings.TrimRight(baseURL, "/"), Animated: KindVideo}
}

// Key builds a normalized MediaKey. Unknown regions and languages fall back to defaults.
func (l Locator) Key(day Day, region, lang string, kind Kind) MediaKey {
	return MediaKey{
		Day:      day,
		Region:   ParseRegion(region),
		Language: NormalizeLanguage(lang),
		Kind:     kind,
	}
}

// URL returns the media URL for a key: {base}/{region}/{language}/{YYYY-MM-DD}[.ext]
func (l Locator) URL(k MediaKey) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(l.BaseURL, "/"))
	b.WriteByte('/')
	b.WriteString(string(ParseRegion(string(k.Region))))
	b.WriteByte('/')
	b.WriteString(NormalizeLanguage(k.Language))
	b.WriteByte('/')
	b.WriteString(k.Day.String())
	b.WriteString(k.Kind.Ext())
	return b.String()
}

// Resolve is the locator function. preferAnimated is only a hint:
// callers must still handle a static response.
func (l Locator) Resolve(day Day, region, lang string, preferAnimated bool) string {
	kind := KindStatic
	if preferAnimated {
		kind = l.animatedKind()
	}
	return l.URL(l.Key(day, region, lang, kind))
}

// StaticURL strips a known animation extension from a media URL.
// URLs that are already static are returned unchanged.
func (l Locator) StaticURL(u string) string {
	base, suffix := u, ""
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		base, suffix = u[:i], u[i:]
	}
	ext := path.Ext(base)
	if _, ok := animatedExts[strings.ToLower(ext)]; !ok {
		return u
	}
	return strings.TrimSuffix(base, ext) + suffix
}

func (l Locator) animatedKind() Kind {
	if l.Animated == KindStatic {
		return KindVideo
	}
	return l.Animated
}
