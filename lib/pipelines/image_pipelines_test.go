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
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/taskpipe/lib/backends"
)

func TestImageClassification(t *testing.T) {
	model := &fakeModel{
		config: &backends.ModelConfig{
			ID2Label: map[int]string{0: "tabby", 1: "tiger"},
		},
		forward: func(inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
			return &backends.ModelOutput{Logits: [][]float32{{3, -1}}}, nil
		},
	}

	p, err := NewImageClassificationPipeline("image-classification", Collaborators{
		Model:     model,
		Processor: &fakeProcessor{},
	})
	require.NoError(t, err)

	ic, err := As[*ImageClassificationPipeline](p)
	require.NoError(t, err)

	top, err := ic.Top(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.Equal(t, "tabby", top.Label)
	assert.Greater(t, top.Score, float32(0.9))
}

func TestImageToTextCaptionsEachImage(t *testing.T) {
	tokenizer := newFakeTokenizer()
	caption := tokenizer.tokenize("a cat on a couch")

	model := &fakeModel{
		generate: func(inputs *backends.ModelInputs, cfg *backends.GenerationConfig) ([][]int32, error) {
			return [][]int32{caption}, nil
		},
		config: &backends.ModelConfig{},
	}
	processor := &fakeProcessor{}

	p, err := NewImageToTextPipeline("image-to-text", Collaborators{
		Tokenizer: tokenizer,
		Model:     model,
		Processor: processor,
	})
	require.NoError(t, err)

	it, err := As[*ImageToTextPipeline](p)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	results, err := it.Caption(context.Background(), []image.Image{img, img})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a cat on a couch", results[0].Text)
	// Images are processed one at a time.
	assert.Len(t, processor.batches, 2)
}

func TestZeroShotImageClassification(t *testing.T) {
	tokenizer := newFakeTokenizer()
	model := &fakeModel{
		config: &backends.ModelConfig{},
		forward: func(inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
			// Two images against three captions.
			return &backends.ModelOutput{
				LogitsPerImage: [][]float32{
					{5, 1, 0},
					{0, 1, 5},
				},
			}, nil
		},
	}

	p, err := NewZeroShotImageClassificationPipeline("zero-shot-image-classification", Collaborators{
		Tokenizer: tokenizer,
		Model:     model,
		Processor: &fakeProcessor{},
	})
	require.NoError(t, err)

	zs, err := As[*ZeroShotImageClassificationPipeline](p)
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	results, err := zs.Classify(context.Background(), []image.Image{img, img},
		[]string{"cat", "dog", "car"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "cat", results[0][0].Label)
	assert.Equal(t, "car", results[1][0].Label)

	var sum float32
	for _, s := range results[0] {
		sum += s.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestZeroShotImageRejectsEmptyCandidates(t *testing.T) {
	p, err := NewZeroShotImageClassificationPipeline("zero-shot-image-classification", Collaborators{
		Tokenizer: newFakeTokenizer(),
		Model:     &fakeModel{},
		Processor: &fakeProcessor{},
	})
	require.NoError(t, err)

	zs, err := As[*ZeroShotImageClassificationPipeline](p)
	require.NoError(t, err)

	_, err = zs.Classify(context.Background(), []image.Image{image.NewRGBA(image.Rect(0, 0, 1, 1))}, nil)
	require.Error(t, err)
}
