package domain

import "strings"

// Source names an upstream data provider.
const (
	SourceDexScreener = "dexscreener"
	SourceJupiter     = "jupiter"
)

// KnownSources lists the providers with fetchers in this repo.
var KnownSources = []string{SourceDexScreener, SourceJupiter}

// IsKnownSource reports whether name is one of KnownSources.
func IsKnownSource(name string) bool {
	for _, s := range KnownSources {
		if s == name {
			return true
		}
	}
	return false
}

var sourceAliases = map[string]string{
	"dex": SourceDexScreener,
	"jup": SourceJupiter,
}

// CanonicalSource maps short provider aliases to their canonical name.
// Unknown names are returned trimmed and lower-cased.
func CanonicalSource(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := sourceAliases[name]; ok {
		return canonical
	}
	return name
}
