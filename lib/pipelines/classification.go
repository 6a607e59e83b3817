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

	"github.com/antflydb/taskpipe/lib/backends"
)

// Classification is one (label, score) candidate. Scores for one input sum
// to 1 across the full label space.
type Classification struct {
	// Label is the predicted class label.
	Label string `json:"label"`

	// Score is the softmax probability in [0,1].
	Score float32 `json:"score"`
}

// ClassifyOption configures a classification call.
type ClassifyOption func(*classifyConfig)

type classifyConfig struct {
	topK    int
	topKSet bool
}

// WithTopK limits the number of returned candidates per input. Zero or
// negative keeps the task's default.
func WithTopK(k int) ClassifyOption {
	return func(c *classifyConfig) {
		if k > 0 {
			c.topK = k
			c.topKSet = true
		}
	}
}

func applyClassifyOptions(opts []ClassifyOption) *classifyConfig {
	cfg := &classifyConfig{topK: 1}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DecodeClassification converts per-item logits [batch, labels] into ranked
// (label, score) candidates. Softmax is applied per item; the top k
// candidates are returned sorted descending by score, ties broken by label
// index.
func DecodeClassification(logits [][]float32, config *backends.ModelConfig, topK int) [][]Classification {
	results := make([][]Classification, len(logits))
	for i, itemLogits := range logits {
		probs := Softmax(itemLogits)
		indices := TopKIndices(probs, topK)
		candidates := make([]Classification, len(indices))
		for j, idx := range indices {
			candidates[j] = Classification{
				Label: config.Label(idx),
				Score: probs[idx],
			}
		}
		results[i] = candidates
	}
	return results
}

// TextClassificationPipeline assigns labels to whole texts.
type TextClassificationPipeline struct {
	base
}

// NewTextClassificationPipeline constructs a text classification pipeline.
func NewTextClassificationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &TextClassificationPipeline{base: newBase(task, c)}, nil
}

// Classify scores a batch of texts. The result has one candidate list per
// input text, each holding the top-k labels sorted descending by score.
func (p *TextClassificationPipeline) Classify(ctx context.Context, texts []string, opts ...ClassifyOption) ([][]Classification, error) {
	cfg := applyClassifyOptions(opts)

	_, out, err := p.run(ctx, texts)
	if err != nil {
		return nil, err
	}

	return DecodeClassification(out.Logits, p.model.Config(), cfg.topK), nil
}

// Top classifies a single text and returns only the best label. This is the
// flattened shape of a topk=1 call.
func (p *TextClassificationPipeline) Top(ctx context.Context, text string) (Classification, error) {
	results, err := p.Classify(ctx, []string{text})
	if err != nil {
		return Classification{}, err
	}
	return results[0][0], nil
}

// ImageClassificationPipeline assigns labels to images.
type ImageClassificationPipeline struct {
	base
}

// NewImageClassificationPipeline constructs an image classification pipeline.
func NewImageClassificationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &ImageClassificationPipeline{base: newBase(task, c)}, nil
}

// Classify scores a batch of images, one candidate list per image.
func (p *ImageClassificationPipeline) Classify(ctx context.Context, images []image.Image, opts ...ClassifyOption) ([][]Classification, error) {
	cfg := applyClassifyOptions(opts)

	inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Images: images})
	if err != nil {
		return nil, err
	}

	out, err := p.model.Forward(ctx, inputs)
	if err != nil {
		return nil, err
	}

	return DecodeClassification(out.Logits, p.model.Config(), cfg.topK), nil
}

// Top classifies a single image and returns only the best label.
func (p *ImageClassificationPipeline) Top(ctx context.Context, img image.Image) (Classification, error) {
	results, err := p.Classify(ctx, []image.Image{img})
	if err != nil {
		return Classification{}, err
	}
	return results[0][0], nil
}
