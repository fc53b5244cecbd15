// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// MatchNames filters vault names by a glob pattern. A pattern without glob
// characters (*?[) is an exact match and fails when no vault has that name.
func MatchNames(pattern string, names []string) ([]string, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	if !hasGlob {
		for _, name := range names {
			if name == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("vault '%s' not found", pattern)
	}

	var matches []string
	for _, name := range names {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, name)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no vaults match pattern '%s'", pattern)
	}

	return matches, nil
}

// SortNames returns a sorted copy of the names slice.
func SortNames(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	return sorted
}
