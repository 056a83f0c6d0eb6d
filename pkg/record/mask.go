package record

import (
	"net/url"
	"strings"
)

// MaskedValue replaces sensitive header and query parameter values.
const MaskedValue = "MASKED"

// MaskedNames is a set of lowercased header and query parameter names whose
// values must not appear in records.
type MaskedNames map[string]struct{}

// NewMaskedNames builds a set from the given names. Matching is
// case-insensitive.
func NewMaskedNames(names ...string) MaskedNames {
	set := make(MaskedNames, len(names))
	for _, name := range names {
		set[strings.ToLower(name)] = struct{}{}
	}
	return set
}

// DefaultMaskedNames returns the names masked when no explicit set is given.
func DefaultMaskedNames() MaskedNames {
	return NewMaskedNames("authorization", "token")
}

// Extend returns a new set containing the receiver's names plus the given
// ones.
func (m MaskedNames) Extend(names ...string) MaskedNames {
	extended := make(MaskedNames, len(m)+len(names))
	for name := range m {
		extended[name] = struct{}{}
	}
	for _, name := range names {
		extended[strings.ToLower(name)] = struct{}{}
	}
	return extended
}

// Contains reports whether name is in the set, ignoring case.
func (m MaskedNames) Contains(name string) bool {
	_, ok := m[strings.ToLower(name)]
	return ok
}

func maskHeaders(headers map[string]string, names MaskedNames) map[string]string {
	if len(headers) == 0 || len(names) == 0 {
		return headers
	}
	masked := make(map[string]string, len(headers))
	for name, value := range headers {
		if names.Contains(name) {
			value = MaskedValue
		}
		masked[name] = value
	}
	return masked
}

// maskQuery rewrites a raw query string, replacing the values of masked
// parameters. Parameters that are not masked pass through byte-for-byte in
// their original order.
func maskQuery(rawQuery string, names MaskedNames) string {
	if rawQuery == "" || len(names) == 0 {
		return rawQuery
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key := pair
		if idx := strings.Index(pair, "="); idx >= 0 {
			key = pair[:idx]
		}
		decoded, err := url.QueryUnescape(key)
		if err != nil {
			decoded = key
		}
		if names.Contains(decoded) {
			pairs[i] = key + "=" + MaskedValue
		}
	}

	return strings.Join(pairs, "&")
}
