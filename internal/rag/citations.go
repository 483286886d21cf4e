package rag

import (
	"regexp"

	"github.com/vidscope/vidscope-backend/internal/models"
)

var citationPattern = regexp.MustCompile(`\[S\d+\]`)

// ExtractCitedRefs scans generated text for inline citation markers of the
// form [S1], [S2], ... and returns the distinct refs in first-occurrence
// order. Malformed or unknown markers are simply not matched; they are never
// an error.
func ExtractCitedRefs(answer string) []string {
	matches := citationPattern.FindAllString(answer, -1)
	refs := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		ref := m[1 : len(m)-1]
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// FilterKnownRefs drops refs that were never offered to the generator, so a
// hallucinated [S99] does not leak into the audit record. Order is
// preserved.
func FilterKnownRefs(refs []string, sources []models.ChatSource) []string {
	known := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		known[s.Ref] = struct{}{}
	}
	kept := make([]string, 0, len(refs))
	for _, r := range refs {
		if _, ok := known[r]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}
