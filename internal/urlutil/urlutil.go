// Package urlutil provides URL canonicalization for duplicate detection.
package urlutil

import "strings"

// Normalize canonicalizes an article URL so that two references to the same
// page compare equal. Zero-width spaces (which LLM output sometimes embeds in
// links) are removed, surrounding whitespace is trimmed, at most one trailing
// slash is dropped, and the result is lower-cased. Returns the empty string
// for empty or whitespace-only input.
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "​", "")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "/")
	return strings.ToLower(s)
}
