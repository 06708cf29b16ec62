// Package enums holds the closed string sets persisted in the database and
// carried on the wire.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func known[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse trims raw and matches it exactly against set; kind names the set in errors.
func parse[T ~string](set []T, kind, raw string) (T, error) {
	v := T(strings.TrimSpace(raw))
	if known(set, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
