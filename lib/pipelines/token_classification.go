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

	"github.com/antflydb/taskpipe/lib/backends"
)

// TokenPrediction is one labeled token from a sequence-labeling decode.
type TokenPrediction struct {
	// Entity is the predicted label for the token.
	Entity string `json:"entity"`

	// Score is the softmax probability of the predicted label.
	Score float32 `json:"score"`

	// Index is the token's position in the encoded sequence.
	Index int `json:"index"`

	// Word is the decoded token text.
	Word string `json:"word"`

	// Start and End are character offsets; nil because offsets are not
	// tracked at this layer.
	Start *int `json:"start"`
	End   *int `json:"end"`
}

// TagOption configures a token classification call.
type TagOption func(*tagConfig)

type tagConfig struct {
	ignoreLabels map[string]struct{}
}

// WithIgnoreLabels replaces the set of labels to drop from the output.
// The default is {"O"}.
func WithIgnoreLabels(labels []string) TagOption {
	return func(c *tagConfig) {
		c.ignoreLabels = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			c.ignoreLabels[l] = struct{}{}
		}
	}
}

// TokenClassificationPipeline labels every token of a text (NER, chunking,
// part-of-speech).
type TokenClassificationPipeline struct {
	base
}

// NewTokenClassificationPipeline constructs a token classification pipeline.
func NewTokenClassificationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &TokenClassificationPipeline{base: newBase(task, c)}, nil
}

// Tag labels each token of a batch of texts. Per token position the arg-max
// label is taken; positions whose label is in the ignore set and positions
// decoding to empty text (special tokens) are skipped.
func (p *TokenClassificationPipeline) Tag(ctx context.Context, texts []string, opts ...TagOption) ([][]TokenPrediction, error) {
	cfg := &tagConfig{ignoreLabels: map[string]struct{}{"O": {}}}
	for _, opt := range opts {
		opt(cfg)
	}

	enc, out, err := p.run(ctx, texts)
	if err != nil {
		return nil, err
	}

	return p.decode(enc, out.TokenLogits, cfg.ignoreLabels)
}

// TagOne labels the tokens of a single text.
func (p *TokenClassificationPipeline) TagOne(ctx context.Context, text string, opts ...TagOption) ([]TokenPrediction, error) {
	results, err := p.Tag(ctx, []string{text}, opts...)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (p *TokenClassificationPipeline) decode(enc *backends.Encoding, tokenLogits [][][]float32, ignore map[string]struct{}) ([][]TokenPrediction, error) {
	config := p.model.Config()
	results := make([][]TokenPrediction, len(tokenLogits))

	for i, itemLogits := range tokenLogits {
		var predictions []TokenPrediction
		for j, positionLogits := range itemLogits {
			if enc.AttentionMask[i][j] == 0 {
				continue
			}

			probs := Softmax(positionLogits)
			best := Argmax(probs)
			label := config.Label(best)
			if _, skip := ignore[label]; skip {
				continue
			}

			word, err := p.tokenizer.Decode([]int32{enc.InputIDs[i][j]}, true)
			if err != nil {
				return nil, err
			}
			if word == "" {
				// Special tokens decode to nothing.
				continue
			}

			predictions = append(predictions, TokenPrediction{
				Entity: label,
				Score:  probs[best],
				Index:  j,
				Word:   word,
			})
		}
		results[i] = predictions
	}

	return results, nil
}
