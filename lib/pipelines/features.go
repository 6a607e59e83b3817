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
)

// Pooling selects how per-token hidden states collapse into one vector.
type Pooling string

const (
	// PoolingNone returns the raw per-token hidden states.
	PoolingNone Pooling = "none"
	// PoolingMean averages hidden states over unmasked positions.
	PoolingMean Pooling = "mean"
	// PoolingCLS takes the first token's hidden state.
	PoolingCLS Pooling = "cls"
)

// EmbedOption configures a feature extraction call.
type EmbedOption func(*embedConfig)

type embedConfig struct {
	pooling   Pooling
	normalize bool
}

// WithPooling selects the pooling strategy. The default is mean pooling.
func WithPooling(p Pooling) EmbedOption {
	return func(c *embedConfig) {
		c.pooling = p
	}
}

// WithNormalize L2-normalizes each pooled vector, making dot products equal
// cosine similarities.
func WithNormalize() EmbedOption {
	return func(c *embedConfig) {
		c.normalize = true
	}
}

// FeatureExtractionPipeline produces embedding vectors from texts.
type FeatureExtractionPipeline struct {
	base
}

// NewFeatureExtractionPipeline constructs a feature extraction pipeline.
func NewFeatureExtractionPipeline(task string, c Collaborators) (Pipeline, error) {
	return &FeatureExtractionPipeline{base: newBase(task, c)}, nil
}

// Embed produces one vector per input text. With mean pooling, padding
// positions are excluded from both the sum and the count.
func (p *FeatureExtractionPipeline) Embed(ctx context.Context, texts []string, opts ...EmbedOption) ([][]float32, error) {
	cfg := &embedConfig{pooling: PoolingMean}
	for _, opt := range opts {
		opt(cfg)
	}

	enc, out, err := p.run(ctx, texts)
	if err != nil {
		return nil, err
	}

	var vectors [][]float32
	switch cfg.pooling {
	case PoolingCLS:
		vectors = make([][]float32, len(out.LastHiddenState))
		for i, item := range out.LastHiddenState {
			if len(item) > 0 {
				vectors[i] = item[0]
			}
		}
	default:
		vectors = MeanPool(out.LastHiddenState, enc.AttentionMask)
	}

	if cfg.normalize {
		for _, v := range vectors {
			NormalizeL2(v)
		}
	}
	return vectors, nil
}

// Tokens produces the raw per-token hidden states [batch, seq, hidden].
func (p *FeatureExtractionPipeline) Tokens(ctx context.Context, texts []string) ([][][]float32, error) {
	_, out, err := p.run(ctx, texts)
	if err != nil {
		return nil, err
	}
	return out.LastHiddenState, nil
}

// Similarity embeds two texts with mean pooling and normalization and
// returns their cosine similarity via a dot product.
func (p *FeatureExtractionPipeline) Similarity(ctx context.Context, a, b string) (float32, error) {
	vectors, err := p.Embed(ctx, []string{a, b}, WithNormalize())
	if err != nil {
		return 0, err
	}
	return DotProduct(vectors[0], vectors[1]), nil
}
