package jsonld

import (
	"strings"

	"bitbucket.org/creachadair/stringset"
	"github.com/piprate/json-gold/ld"
)

// keywords can never be redefined as terms.
var keywords = stringset.New(
	"@context",
	"@id",
	"@type",
	"@value",
	"@language",
	"@vocab",
	"@reverse",
	"@index",
	"@list",
	"@set",
	"@graph",
	"@container",
	"@base",
)

// containerValues is the closed set of values accepted for @container.
var containerValues = stringset.New(
	"@list",
	"@set",
	"@index",
	"@language",
	"@type",
	"@graph",
	"@id",
)

// reverseContainerValues are the @container values allowed on a reverse property.
var reverseContainerValues = stringset.New("@set", "@index")

// directives are the context keys handled by the builder rather than the term definer.
var directives = stringset.New("@base", "@vocab", "@language")

// IsKeyword reports whether s is a reserved JSON-LD keyword.
func IsKeyword(s string) bool {
	return keywords.Contains(s)
}

// IsAbsoluteIRI reports whether s starts with a valid URI scheme followed by
// a colon (RFC 3986, section 3.1). Blank node identifiers are not absolute.
func IsAbsoluteIRI(s string) bool {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return false
	}
	for j := 0; j < i; j++ {
		c := s[j]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// IsRelativeIRI reports whether s can be used as a relative reference,
// i.e. it is neither absolute, a keyword nor a blank node identifier.
func IsRelativeIRI(s string) bool {
	return !IsAbsoluteIRI(s) && !IsKeyword(s) && !IsBlankNode(s)
}

// IsBlankNode reports whether s is a blank node identifier ("_:" prefix).
func IsBlankNode(s string) bool {
	return strings.HasPrefix(s, "_:")
}

// resolveIRI resolves ref against base using RFC 3986 reference resolution.
func resolveIRI(base, ref string) string {
	return ld.Resolve(base, ref)
}

// splitCompactIRI splits value into prefix and suffix when it has the shape
// of a compact IRI. Blank node identifiers and hierarchical IRIs
// ("scheme://...") are not compact IRIs.
func splitCompactIRI(value string) (prefix, suffix string, ok bool) {
	prefix, suffix, found := strings.Cut(value, ":")
	if !found || prefix == "_" || strings.HasPrefix(suffix, "//") {
		return "", "", false
	}
	return prefix, suffix, true
}
