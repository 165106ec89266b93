package search

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// Expander produces up to n alternate phrasings of a query. The original
// query is not part of the output. Implementations may return errors;
// the retriever only ever sees expanders wrapped in GuardedExpander.
type Expander interface {
	Expand(ctx context.Context, query string, n int) ([]string, error)
	Name() string
}

// minExpansionLen drops LLM lines too short to be a real question.
const minExpansionLen = 10

var (
	numberingPrefix = regexp.MustCompile(`^\d+[\.\)]\s*`)
	bulletPrefix    = regexp.MustCompile(`^[-•*]\s*`)
)

// LLMExpander asks a Generator for rephrasings, one per line.
type LLMExpander struct {
	gen Generator
}

// NewLLMExpander creates an expander backed by gen.
func NewLLMExpander(gen Generator) *LLMExpander {
	return &LLMExpander{gen: gen}
}

// Expand implements Expander.
func (e *LLMExpander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 || strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	out, err := e.gen.Generate(ctx, expansionPrompt(query, n))
	if err != nil {
		return nil, tterrors.New(tterrors.ErrCodeExpansionFailed, "query expansion failed", err).
			WithDetail("generator", e.gen.Name())
	}
	return parseExpansions(out, n), nil
}

// Name returns the generator name.
func (e *LLMExpander) Name() string { return e.gen.Name() }

func expansionPrompt(query string, n int) string {
	return fmt.Sprintf(`Given this question, generate %d alternative ways to ask it.
Focus on different phrasings, synonyms, and perspectives while keeping the core meaning.

Original question: %s

Generate ONLY the alternative questions, one per line. Do not number them or add explanations.`, n, query)
}

// parseExpansions strips numbering and bullets from each line and keeps
// lines longer than minExpansionLen, at most n of them.
func parseExpansions(text string, n int) []string {
	out := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = numberingPrefix.ReplaceAllString(line, "")
		line = bulletPrefix.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if len(line) <= minExpansionLen {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

// HeuristicExpander rewrites common question shapes with templates. It
// needs no external service and never fails.
type HeuristicExpander struct{}

// Expand implements Expander.
func (HeuristicExpander) Expand(_ context.Context, query string, n int) ([]string, error) {
	return heuristicVariations(query, n), nil
}

// Name returns "heuristic".
func (HeuristicExpander) Name() string { return "heuristic" }

var fillerPhrases = []string{"please", "could you", "can you", "would you", "tell me"}

func heuristicVariations(query string, n int) []string {
	out := []string{}
	if n <= 0 {
		return out
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return out
	}
	lower := strings.ToLower(trimmed)
	withoutQ := strings.TrimSpace(strings.TrimRight(trimmed, "?"))

	topicAfter := func(prefixes ...string) string {
		for _, p := range prefixes {
			if rest, ok := strings.CutPrefix(lower, p); ok {
				return strings.Trim(rest, "? ")
			}
		}
		return ""
	}

	switch {
	case hasAnyPrefix(lower, "what is", "what are", "what's"):
		if topic := topicAfter("what is", "what are", "what's"); topic != "" {
			out = append(out, "Explain "+topic, topic+" definition and explanation")
		}
	case hasAnyPrefix(lower, "how does", "how do", "how to"):
		topic := topicAfter("how does", "how do", "how to")
		topic = strings.TrimSpace(strings.TrimSuffix(topic, "work"))
		if topic != "" {
			out = append(out, topic+" mechanism and process", "Understanding "+topic)
		}
	case strings.HasPrefix(lower, "why"):
		if topic := topicAfter("why"); topic != "" {
			out = append(out, "Reasons for "+topic, topic+" explanation and causes")
		}
	}

	if len(out) < n {
		out = append(out, "Key information about "+withoutQ)
	}
	if len(out) < n {
		simplified := withoutQ
		for _, f := range fillerPhrases {
			simplified = strings.ReplaceAll(simplified, f, "")
		}
		simplified = strings.Join(strings.Fields(simplified), " ")
		if simplified != trimmed && simplified != "" {
			out = append(out, simplified)
		}
	}

	if len(out) > n {
		out = out[:n]
	}
	return out
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DedupVariants builds the variant set: the original query followed by
// expansions that differ from it and from each other by exact string
// equality after trimming, capped at maxVariants. Blank expansions are
// dropped.
func DedupVariants(original string, expansions []string, maxVariants int) []string {
	if maxVariants < 1 {
		maxVariants = 1
	}
	variants := []string{original}
	seen := map[string]struct{}{original: {}}
	for _, e := range expansions {
		if len(variants) >= maxVariants {
			break
		}
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		variants = append(variants, e)
	}
	return variants
}
