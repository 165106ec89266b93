package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

// scriptedGenerator returns out or err and records prompts.
type scriptedGenerator struct {
	mu      sync.Mutex
	out     string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.out, g.err
}

func (g *scriptedGenerator) Name() string { return "scripted" }

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func TestLLMExpander_ParsesLines(t *testing.T) {
	// Given: a generator answering with numbered and bulleted lines
	gen := &scriptedGenerator{out: "1. How do plants make food from light?\n" +
		"2) What does photosynthesis produce?\n" +
		"- short\n" +
		"\n" +
		"• Which organelle performs photosynthesis?\n"}
	e := NewLLMExpander(gen)

	// When: asking for three variants
	out, err := e.Expand(context.Background(), "What is photosynthesis?", 3)

	// Then: markers are stripped and short lines dropped
	require.NoError(t, err)
	assert.Equal(t, []string{
		"How do plants make food from light?",
		"What does photosynthesis produce?",
		"Which organelle performs photosynthesis?",
	}, out)
	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "generate 3 alternative ways")
	assert.Contains(t, gen.prompts[0], "Original question: What is photosynthesis?")
}

func TestLLMExpander_CapsAtN(t *testing.T) {
	gen := &scriptedGenerator{out: strings.Repeat("A sufficiently long rephrasing\n", 5)}
	out, err := NewLLMExpander(gen).Expand(context.Background(), "q?", 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestLLMExpander_ErrorIsExpansionFailed(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	_, err := NewLLMExpander(gen).Expand(context.Background(), "What is X?", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, tterrors.ErrExpansionFailed)
}

func TestLLMExpander_ZeroNSkipsGenerator(t *testing.T) {
	gen := &scriptedGenerator{out: "unused line here"}
	out, err := NewLLMExpander(gen).Expand(context.Background(), "What is X?", 0)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, gen.calls())
}

func TestHeuristicExpander(t *testing.T) {
	tests := []struct {
		query string
		n     int
		want  []string
	}{
		{"What is photosynthesis?", 2, []string{"Explain photosynthesis", "photosynthesis definition and explanation"}},
		{"What is photosynthesis?", 3, []string{"Explain photosynthesis", "photosynthesis definition and explanation", "Key information about What is photosynthesis"}},
		{"How does osmosis work?", 2, []string{"osmosis mechanism and process", "Understanding osmosis"}},
		{"Why do leaves change color?", 2, []string{"Reasons for do leaves change color", "do leaves change color explanation and causes"}},
		{"Could you list the cell organelles", 2, []string{"Key information about Could you list the cell organelles"}},
		{"please list cell organelles", 2, []string{"Key information about please list cell organelles", "list cell organelles"}},
		{"anything", 0, []string{}},
		{"   ", 2, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			out, err := HeuristicExpander{}.Expand(context.Background(), tt.query, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDedupVariants(t *testing.T) {
	tests := []struct {
		name       string
		expansions []string
		max        int
		want       []string
	}{
		{"no expansions", nil, 3, []string{"What is X"}},
		{"drops original and duplicates", []string{"What is X", "Explain X", "Explain X"}, 3, []string{"What is X", "Explain X"}},
		{"trims and drops blanks", []string{"  Explain X ", "", "   "}, 3, []string{"What is X", "Explain X"}},
		{"keeps first occurrence order", []string{"B variant", "A variant"}, 3, []string{"What is X", "B variant", "A variant"}},
		{"caps", []string{"one", "two", "three"}, 2, []string{"What is X", "one"}},
		{"case differs is distinct", []string{"what is x"}, 3, []string{"What is X", "what is x"}},
		{"max below one keeps original", []string{"one"}, 0, []string{"What is X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupVariants("What is X", tt.expansions, tt.max))
		})
	}
}
