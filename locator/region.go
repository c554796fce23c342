package locator

import (
	"strings"

	"golang.org/x/text/language"
)

type Region string

const (
	RegionUS     Region = "us"
	RegionEU     Region = "eu"
	RegionAP     Region = "ap"
	RegionGlobal Region = "global"
)

// Regions lists every supported region.
var Regions = []Region{RegionUS, RegionEU, RegionAP, RegionGlobal}

// DefaultLanguage is used whenever a language tag cannot be understood.
const DefaultLanguage = "en"

// ParseRegion returns the region for the given code.
// Unknown or empty codes resolve to RegionGlobal.
func ParseRegion(code string) Region {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, r := range Regions {
		if string(r) == code {
			return r
		}
	}
	return RegionGlobal
}

// RegionFromHost guesses the region from a hostname.
// Hosts that carry no region hint resolve to RegionGlobal.
func RegionFromHost(hostname string) Region {
	h := strings.ToLower(hostname)
	switch {
	case strings.Contains(h, ".eu") || strings.Contains(h, "europe"):
		return RegionEU
	case strings.Contains(h, ".ap") || strings.Contains(h, "asia"):
		return RegionAP
	case strings.Contains(h, ".us") || strings.Contains(h, "america"):
		return RegionUS
	}
	return RegionGlobal
}

// NormalizeLanguage canonicalizes a BCP 47 language tag.
// Empty, malformed or unknown tags resolve to DefaultLanguage.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return DefaultLanguage
	}
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return DefaultLanguage
	}
	return t.String()
}
