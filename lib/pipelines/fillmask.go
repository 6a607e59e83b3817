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

// MaskFill is one candidate completion of a masked position.
type MaskFill struct {
	// Token is the predicted token's id.
	Token int32 `json:"token"`

	// TokenText is the predicted token decoded on its own.
	TokenText string `json:"token_str"`

	// Score is the softmax probability over the vocabulary.
	Score float32 `json:"score"`

	// Sequence is the input with the mask replaced by the prediction.
	Sequence string `json:"sequence"`
}

// FillMaskPipeline predicts the token behind a mask placeholder.
type FillMaskPipeline struct {
	base
}

// NewFillMaskPipeline constructs a fill-mask pipeline.
func NewFillMaskPipeline(task string, c Collaborators) (Pipeline, error) {
	return &FillMaskPipeline{base: newBase(task, c)}, nil
}

// Fill predicts the top-k completions for the first mask token of each text.
// A text whose encoding contains no mask token fails the whole call with a
// MissingTokenError.
func (p *FillMaskPipeline) Fill(ctx context.Context, texts []string, opts ...ClassifyOption) ([][]MaskFill, error) {
	cfg := applyClassifyOptions(opts)
	if !cfg.topKSet {
		cfg.topK = 5
	}

	maskID, ok := p.tokenizer.MaskTokenID()
	if !ok {
		return nil, &backends.ValidationError{
			Field:  "tokenizer",
			Reason: "vocabulary has no mask token",
		}
	}

	enc, out, err := p.run(ctx, texts)
	if err != nil {
		return nil, err
	}

	results := make([][]MaskFill, len(texts))
	for i := range texts {
		maskIndex := -1
		for j, id := range enc.InputIDs[i] {
			if id == maskID {
				maskIndex = j
				break
			}
		}
		if maskIndex < 0 {
			return nil, &backends.MissingTokenError{Token: "mask", Input: texts[i]}
		}

		probs := Softmax(out.TokenLogits[i][maskIndex])
		indices := TopKIndices(probs, cfg.topK)

		fills := make([]MaskFill, len(indices))
		for j, idx := range indices {
			tokenText, err := p.tokenizer.Decode([]int32{int32(idx)}, false)
			if err != nil {
				return nil, err
			}

			filled := make([]int32, len(enc.InputIDs[i]))
			copy(filled, enc.InputIDs[i])
			filled[maskIndex] = int32(idx)
			sequence, err := p.tokenizer.Decode(filled, true)
			if err != nil {
				return nil, err
			}

			fills[j] = MaskFill{
				Token:     int32(idx),
				TokenText: tokenText,
				Score:     probs[idx],
				Sequence:  sequence,
			}
		}
		results[i] = fills
	}

	return results, nil
}

// FillOne predicts completions for a single text.
func (p *FillMaskPipeline) FillOne(ctx context.Context, text string, opts ...ClassifyOption) ([]MaskFill, error) {
	results, err := p.Fill(ctx, []string{text}, opts...)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
