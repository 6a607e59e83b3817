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

// GeneratedText is one generated output sequence.
type GeneratedText struct {
	Text string `json:"generated_text"`
}

// Summary is one generated summary.
type Summary struct {
	Text string `json:"summary_text"`
}

// Translation is one generated translation.
type Translation struct {
	Text string `json:"translation_text"`
}

// GenerateOption configures a generation call.
type GenerateOption func(*generateConfig)

type generateConfig struct {
	generation *backends.GenerationConfig
	srcLang    string
	tgtLang    string
}

func applyGenerateOptions(opts []GenerateOption) *generateConfig {
	cfg := &generateConfig{generation: backends.DefaultGenerationConfig()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithGenerationConfig replaces the full generation parameter set.
func WithGenerationConfig(gc *backends.GenerationConfig) GenerateOption {
	return func(c *generateConfig) {
		if gc != nil {
			c.generation = gc
		}
	}
}

// WithMaxNewTokens caps the number of generated tokens.
func WithMaxNewTokens(n int) GenerateOption {
	return func(c *generateConfig) {
		if n > 0 {
			c.generation.MaxNewTokens = n
		}
	}
}

// WithSampling enables sampling at the given temperature instead of greedy
// decoding.
func WithSampling(temperature float32) GenerateOption {
	return func(c *generateConfig) {
		c.generation.DoSample = true
		if temperature > 0 {
			c.generation.Temperature = temperature
		}
	}
}

// WithLanguagePair sets the source and target languages for translation
// models that take explicit language codes.
func WithLanguagePair(src, tgt string) GenerateOption {
	return func(c *generateConfig) {
		c.srcLang = src
		c.tgtLang = tgt
	}
}

// Text2TextPipeline runs encoder-decoder generation: the input text is
// encoded, generation produces a fresh sequence, and the prompt never appears
// in the output.
type Text2TextPipeline struct {
	base
}

// NewText2TextPipeline constructs a text-to-text generation pipeline.
func NewText2TextPipeline(task string, c Collaborators) (Pipeline, error) {
	return &Text2TextPipeline{base: newBase(task, c)}, nil
}

// Generate produces one output text per input text. The model config's task
// prefix (task-specific entry first, model-wide prefix second) is prepended
// to every input before tokenizing.
func (p *Text2TextPipeline) Generate(ctx context.Context, texts []string, opts ...GenerateOption) ([]GeneratedText, error) {
	cfg := applyGenerateOptions(opts)

	decoded, err := p.generate(ctx, texts, cfg)
	if err != nil {
		return nil, err
	}

	results := make([]GeneratedText, len(decoded))
	for i, text := range decoded {
		results[i] = GeneratedText{Text: text}
	}
	return results, nil
}

func (p *Text2TextPipeline) generate(ctx context.Context, texts []string, cfg *generateConfig) ([]string, error) {
	prefix := p.model.Config().TaskPrefix(p.task)
	inputs := texts
	if prefix != "" {
		inputs = make([]string, len(texts))
		for i, t := range texts {
			inputs[i] = prefix + t
		}
	}

	var enc *backends.Encoding
	var err error
	if builder, ok := p.tokenizer.(backends.TranslationInputBuilder); ok && cfg.srcLang != "" {
		enc, err = builder.BuildTranslationInputs(ctx, inputs, &backends.EncodeOptions{
			Padding:          true,
			Truncation:       true,
			AddSpecialTokens: true,
		}, cfg.srcLang, cfg.tgtLang)
	} else {
		enc, err = p.tokenizer.Encode(ctx, inputs, &backends.EncodeOptions{
			Padding:          true,
			Truncation:       true,
			AddSpecialTokens: true,
		})
	}
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

	return p.tokenizer.BatchDecode(sequences, true)
}

// SummarizationPipeline is a text-to-text pipeline whose outputs are wrapped
// as summaries.
type SummarizationPipeline struct {
	Text2TextPipeline
}

// NewSummarizationPipeline constructs a summarization pipeline.
func NewSummarizationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &SummarizationPipeline{Text2TextPipeline{base: newBase(task, c)}}, nil
}

// Summarize produces one summary per input text.
func (p *SummarizationPipeline) Summarize(ctx context.Context, texts []string, opts ...GenerateOption) ([]Summary, error) {
	cfg := applyGenerateOptions(opts)

	decoded, err := p.generate(ctx, texts, cfg)
	if err != nil {
		return nil, err
	}

	results := make([]Summary, len(decoded))
	for i, text := range decoded {
		results[i] = Summary{Text: text}
	}
	return results, nil
}

// TranslationPipeline is a text-to-text pipeline whose outputs are wrapped as
// translations. Language-pair tasks (translation_en_to_de) carry the pair in
// the model config's task prefix; models needing explicit language codes get
// them through WithLanguagePair and a TranslationInputBuilder tokenizer.
type TranslationPipeline struct {
	Text2TextPipeline
}

// NewTranslationPipeline constructs a translation pipeline.
func NewTranslationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &TranslationPipeline{Text2TextPipeline{base: newBase(task, c)}}, nil
}

// Translate produces one translation per input text.
func (p *TranslationPipeline) Translate(ctx context.Context, texts []string, opts ...GenerateOption) ([]Translation, error) {
	cfg := applyGenerateOptions(opts)

	decoded, err := p.generate(ctx, texts, cfg)
	if err != nil {
		return nil, err
	}

	results := make([]Translation, len(decoded))
	for i, text := range decoded {
		results[i] = Translation{Text: text}
	}
	return results, nil
}
