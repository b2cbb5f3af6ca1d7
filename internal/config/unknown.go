package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every settings section.
var knownKeys = map[string][]string{
	"service": {
		"bff_url", "portal_url", "keycloak_url", "keycloak_realm_url",
		"upload_green_url", "upload_core_url", "download_green_url", "download_core_url",
		"client_id",
	},
	"transfers": {"chunk_size", "threads", "upload_batch_size", "bandwidth_limit"},
	"auth":      {"warn_window", "watchdog_interval"},
	"logging":   {"log_level"},
	"network":   {"connect_timeout", "data_timeout"},
}

// knownSections is the sorted list of section names.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key.String()))
	}

	return errors.Join(errs...)
}

func unknownKeyError(keyStr string) error {
	section, leaf, nested := strings.Cut(keyStr, ".")

	keys, known := knownKeys[section]
	if !nested || !known {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown settings key %q, did you mean %q?", keyStr, s)
		}

		return fmt.Errorf("unknown settings key %q", keyStr)
	}

	if s := closestMatch(leaf, keys); s != "" {
		return fmt.Errorf("unknown settings key %q, did you mean %q?", keyStr, section+"."+s)
	}

	return fmt.Errorf("unknown settings key %q", keyStr)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
