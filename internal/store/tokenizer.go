package store

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases text and splits it on anything that is not a letter,
// digit or underscore. Identifiers such as PHOTOSYN_42 stay one token.
//
// Ingestion must write tokens.jsonl with the same rules, otherwise query
// tokens will not line up with corpus tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

// uniqueTerms returns the distinct tokens in order of first appearance.
func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
