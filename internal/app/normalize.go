package app

import "strings"

// Normalize trims every segment and drops the ones left empty. Order is kept
// and segments are never merged or split, so each page or document stays one
// chunk.
func Normalize(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
