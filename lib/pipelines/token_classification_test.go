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

func nerModel(labelPerPosition func(pos int) int) *fakeModel {
	return &fakeModel{
		config: &backends.ModelConfig{
			ID2Label: map[int]string{0: "O", 1: "B-PER", 2: "B-LOC"},
		},
		forward: func(inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
			tokenLogits := make([][][]float32, len(inputs.InputIDs))
			for i, seq := range inputs.InputIDs {
				tokenLogits[i] = make([][]float32, len(seq))
				for j := range seq {
					logits := []float32{0, 0, 0}
					logits[labelPerPosition(j)] = 10
					tokenLogits[i][j] = logits
				}
			}
			return &backends.ModelOutput{TokenLogits: tokenLogits}, nil
		},
	}
}

func TestTokenClassificationIgnoresOutsideLabel(t *testing.T) {
	// Position 1 (the first word after [CLS]) is B-PER, everything else O.
	model := nerModel(func(pos int) int {
		if pos == 1 {
			return 1
		}
		return 0
	})

	p, err := NewTokenClassificationPipeline("token-classification", Collaborators{
		Tokenizer: newFakeTokenizer(),
		Model:     model,
	})
	require.NoError(t, err)

	tc, err := As[*TokenClassificationPipeline](p)
	require.NoError(t, err)

	predictions, err := tc.TagOne(context.Background(), "alice went home")
	require.NoError(t, err)

	require.Len(t, predictions, 1)
	assert.Equal(t, "B-PER", predictions[0].Entity)
	assert.Equal(t, 1, predictions[0].Index)
	assert.Equal(t, "alice", predictions[0].Word)
	assert.Greater(t, predictions[0].Score, float32(0.9))
	assert.Nil(t, predictions[0].Start)
	assert.Nil(t, predictions[0].End)
}

func TestTokenClassificationCustomIgnoreLabels(t *testing.T) {
	// Everything predicted B-LOC.
	model := nerModel(func(pos int) int { return 2 })

	p, err := NewTokenClassificationPipeline("token-classification", Collaborators{
		Tokenizer: newFakeTokenizer(),
		Model:     model,
	})
	require.NoError(t, err)

	tc, err := As[*TokenClassificationPipeline](p)
	require.NoError(t, err)

	predictions, err := tc.TagOne(context.Background(), "paris france", WithIgnoreLabels([]string{"B-LOC"}))
	require.NoError(t, err)
	assert.Empty(t, predictions)
}

func TestTokenClassificationSkipsPadding(t *testing.T) {
	model := nerModel(func(pos int) int { return 1 })

	p, err := NewTokenClassificationPipeline("token-classification", Collaborators{
		Tokenizer: newFakeTokenizer(),
		Model:     model,
	})
	require.NoError(t, err)

	tc, err := As[*TokenClassificationPipeline](p)
	require.NoError(t, err)

	// The second text is shorter and padded to the first's length; padded
	// positions must not appear in the output.
	results, err := tc.Tag(context.Background(), []string{"one two three four", "one"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, p := range results[1] {
		assert.NotEqual(t, "[PAD]", p.Word)
	}
	assert.Greater(t, len(results[0]), len(results[1]))
}
