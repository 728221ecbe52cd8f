package cache

import (
	"strconv"
	"strings"
	"time"
)

// Freshness windows per resource. User movies and search results go stale
// quickly, the profile holds for a few minutes, and the platform catalog is
// effectively immutable. The AI suggestions window is computed per fetch by
// the suggestions service.
const (
	UserMoviesStaleTime = 30 * time.Second
	SearchStaleTime     = 30 * time.Second
	ProfileStaleTime    = 5 * time.Minute
	PlatformsStaleTime  = 30 * time.Minute
)

// Key identifies one cache entry as a structured tuple. Two keys address the
// same entry iff their tuples are deep-equal. Prefix matching is
// element-wise, so Key{"user-movies"} covers every status-filtered variant.
type Key []string

// keySeparator joins tuple elements into map keys. The unit separator cannot
// appear in tconsts, statuses or search queries.
const keySeparator = "\x1f"

func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// HasPrefix reports whether the key starts with every element of prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, part := range prefix {
		if k[i] != part {
			return false
		}
	}
	return true
}

// UserMoviesKey addresses one status-filtered view of the user's movies.
// An empty status addresses the unfiltered list.
func UserMoviesKey(status string) Key {
	if status == "" {
		status = "all"
	}
	return Key{"user-movies", status}
}

// UserProfileKey addresses the authenticated user's profile.
func UserProfileKey() Key {
	return Key{"user-profile"}
}

// PlatformsKey addresses the immutable platform catalog.
func PlatformsKey() Key {
	return Key{"platforms"}
}

// SuggestionsKey addresses the AI suggestion batch. The debug flag is part
// of the key so debug and production batches never share an entry.
func SuggestionsKey(debug bool) Key {
	return Key{"ai-suggestions", strconv.FormatBool(debug)}
}

// SearchKey addresses one movie search result set.
func SearchKey(query string) Key {
	return Key{"movies", "search", query}
}
