package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	tterrors "github.com/bjornefisk/StudyTutor/internal/errors"
)

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"zero top_k", func(o *Options) { o.TopK = 0 }, false},
		{"negative top_k", func(o *Options) { o.TopK = -1 }, true},
		{"zero rrf_k", func(o *Options) { o.RRFK = 0 }, true},
		{"variations at max", func(o *Options) { o.NumVariations = MaxNumVariations }, false},
		{"variations over max", func(o *Options) { o.NumVariations = MaxNumVariations + 1 }, true},
		{"negative variations", func(o *Options) { o.NumVariations = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, tterrors.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOptions_CandidateK(t *testing.T) {
	assert.Equal(t, 50, Options{TopK: 3}.candidateK())
	assert.Equal(t, 80, Options{TopK: 8}.candidateK())
	assert.Equal(t, 7, Options{TopK: 3, CandidateK: 7}.candidateK())
}

func TestOptions_MaxVariants(t *testing.T) {
	assert.Equal(t, 1, Options{NumVariations: 3}.maxVariants())
	assert.Equal(t, 1, Options{UseMultiQuery: true, NumVariations: 1}.maxVariants())
	assert.Equal(t, 1, Options{UseMultiQuery: true, NumVariations: 0}.maxVariants())
	assert.Equal(t, 3, Options{UseMultiQuery: true, NumVariations: 3}.maxVariants())
}
