// Copyright 2025 Antfly, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipelines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/taskpipe/lib/backends"
)

func nliConfig() *backends.ModelConfig {
	return &backends.ModelConfig{
		Label2ID: map[string]int{"contradiction": 0, "neutral": 1, "entailment": 2},
	}
}

// nliModel returns one (contradiction, neutral, entailment) logit triple per
// Forward call, in order.
func nliModel(cfg *backends.ModelConfig, perCall [][]float32) *fakeModel {
	call := 0
	return &fakeModel{
		config: cfg,
		forward: func(inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
			logits := perCall[call%len(perCall)]
			call++
			return &backends.ModelOutput{Logits: [][]float32{logits}}, nil
		},
	}
}

func newZeroShot(t *testing.T, model *fakeModel) *ZeroShotClassificationPipeline {
	t.Helper()
	p, err := NewZeroShotClassificationPipeline("zero-shot-classification", Collaborators{
		Tokenizer: newFakeTokenizer(),
		Model:     model,
	})
	require.NoError(t, err)

	zs, err := As[*ZeroShotClassificationPipeline](p)
	require.NoError(t, err)
	return zs
}

func TestZeroShotJointScoresSumToOne(t *testing.T) {
	// Entailment logits 3, 1, 0 for the three labels.
	model := nliModel(nliConfig(), [][]float32{
		{0, 0, 3},
		{0, 0, 1},
		{0, 0, 0},
	})
	zs := newZeroShot(t, model)

	scores, err := zs.ClassifyOne(context.Background(), "the match went to overtime",
		[]string{"sports", "politics", "cooking"})
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Equal(t, "sports", scores[0].Label)
	var sum float32
	for i, s := range scores {
		sum += s.Score
		if i > 0 {
			assert.LessOrEqual(t, s.Score, scores[i-1].Score)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestZeroShotMultiLabelScoresIndependently(t *testing.T) {
	// Both labels strongly entailed. Pairwise scoring lets both approach 1.
	model := nliModel(nliConfig(), [][]float32{
		{-3, 0, 3},
		{-3, 0, 3},
	})
	zs := newZeroShot(t, model)

	scores, err := zs.ClassifyOne(context.Background(), "a film about cooking",
		[]string{"food", "movies"}, WithMultiLabel())
	require.NoError(t, err)
	require.Len(t, scores, 2)

	for _, s := range scores {
		assert.Greater(t, s.Score, float32(0.9))
	}
}

func TestZeroShotSingleCandidateUsesPairwise(t *testing.T) {
	model := nliModel(nliConfig(), [][]float32{{-2, 0, 2}})
	zs := newZeroShot(t, model)

	scores, err := zs.ClassifyOne(context.Background(), "text", []string{"only"})
	require.NoError(t, err)
	require.Len(t, scores, 1)

	// Joint softmax over one label would force 1.0; the pairwise score is
	// softmax(-2, 2)[1].
	want := Softmax([]float32{-2, 2})[1]
	assert.InDelta(t, float64(want), float64(scores[0].Score), 1e-6)
}

func TestZeroShotFallbackLabelIndices(t *testing.T) {
	// No Label2ID at all: entailment assumed at index 2, contradiction at 0.
	model := nliModel(&backends.ModelConfig{}, [][]float32{
		{0, 0, 5},
		{5, 0, 0},
	})
	zs := newZeroShot(t, model)

	scores, err := zs.ClassifyOne(context.Background(), "text",
		[]string{"first", "second"}, WithMultiLabel())
	require.NoError(t, err)

	assert.Equal(t, "first", scores[0].Label)
	assert.Greater(t, scores[0].Score, float32(0.9))
	assert.Less(t, scores[1].Score, float32(0.1))
}

func TestZeroShotHypothesisTemplate(t *testing.T) {
	tokenizer := &recordingTokenizer{fakeTokenizer: newFakeTokenizer()}
	model := nliModel(nliConfig(), [][]float32{{0, 0, 1}})

	p, err := NewZeroShotClassificationPipeline("zero-shot-classification", Collaborators{
		Tokenizer: tokenizer,
		Model:     model,
	})
	require.NoError(t, err)

	zs, err := As[*ZeroShotClassificationPipeline](p)
	require.NoError(t, err)

	_, err = zs.ClassifyOne(context.Background(), "text", []string{"urgent"},
		WithHypothesisTemplate("The tone is {}."))
	require.NoError(t, err)

	require.Len(t, tokenizer.pairs, 1)
	assert.Equal(t, "The tone is urgent.", tokenizer.pairs[0])
}

func TestZeroShotRejectsEmptyCandidates(t *testing.T) {
	zs := newZeroShot(t, nliModel(nliConfig(), [][]float32{{0, 0, 0}}))

	_, err := zs.ClassifyOne(context.Background(), "text", nil)
	require.Error(t, err)

	var verr *backends.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// recordingTokenizer captures the text pairs handed to Encode.
type recordingTokenizer struct {
	*fakeTokenizer
	pairs []string
}

func (r *recordingTokenizer) Encode(ctx context.Context, texts []string, opts *backends.EncodeOptions) (*backends.Encoding, error) {
	if opts != nil {
		r.pairs = append(r.pairs, opts.TextPair...)
	}
	return r.fakeTokenizer.Encode(ctx, texts, opts)
}
