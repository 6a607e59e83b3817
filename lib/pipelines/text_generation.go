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
	"strings"

	"github.com/antflydb/taskpipe/lib/backends"
)

// TextGenerationPipeline continues prompts with a causal language model.
// Unlike encoder-decoder generation the output includes the prompt: each
// result is the prompt, trimmed of surrounding whitespace, followed by the
// continuation.
type TextGenerationPipeline struct {
	base
}

// NewTextGenerationPipeline constructs a causal text generation pipeline.
func NewTextGenerationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &TextGenerationPipeline{base: newBase(task, c)}, nil
}

// Generate continues a batch of prompts. The tokenizer is switched to left
// padding so every prompt ends at the sequence boundary where generation
// starts.
func (p *TextGenerationPipeline) Generate(ctx context.Context, prompts []string, opts ...GenerateOption) ([]GeneratedText, error) {
	cfg := applyGenerateOptions(opts)

	p.tokenizer.SetPaddingSide(backends.PadLeft)
	enc, err := p.tokenizer.Encode(ctx, prompts, &backends.EncodeOptions{
		Padding:          true,
		Truncation:       true,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}

	sequences, err := p.model.Generate(ctx, &backends.ModelInputs{
		InputIDs:      enc.InputIDs,
		AttentionMask: enc.AttentionMask,
	}, cfg.generation)
	if err != nil {
		return nil, err
	}

	decoded, err := p.tokenizer.BatchDecode(sequences, true)
	if err != nil {
		return nil, err
	}

	results := make([]GeneratedText, len(decoded))
	for i, continuation := range decoded {
		results[i] = GeneratedText{Text: strings.TrimSpace(prompts[i]) + continuation}
	}
	return results, nil
}

// GenerateOne continues a single prompt.
func (p *TextGenerationPipeline) GenerateOne(ctx context.Context, prompt string, opts ...GenerateOption) (GeneratedText, error) {
	results, err := p.Generate(ctx, []string{prompt}, opts...)
	if err != nil {
		return GeneratedText{}, err
	}
	return results[0], nil
}
