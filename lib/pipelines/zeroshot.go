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
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/antflydb/taskpipe/lib/backends"
)

// defaultHypothesisTemplate turns a candidate label into an NLI hypothesis.
const defaultHypothesisTemplate = "This example is {}."

// LabelScore is one scored candidate label from a zero-shot call.
type LabelScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// ZeroShotOption configures a zero-shot classification call.
type ZeroShotOption func(*zeroShotConfig)

type zeroShotConfig struct {
	multiLabel bool
	template   string
}

// WithMultiLabel scores each label independently in [0,1] instead of
// normalizing scores across labels.
func WithMultiLabel() ZeroShotOption {
	return func(c *zeroShotConfig) {
		c.multiLabel = true
	}
}

// WithHypothesisTemplate replaces the template used to turn a label into an
// NLI hypothesis. "{}" is substituted with the label.
func WithHypothesisTemplate(template string) ZeroShotOption {
	return func(c *zeroShotConfig) {
		if template != "" {
			c.template = template
		}
	}
}

// ZeroShotClassificationPipeline classifies texts against arbitrary candidate
// labels by running each (text, hypothesis) pair through an NLI model.
type ZeroShotClassificationPipeline struct {
	base
	entailmentID    int
	contradictionID int
}

// NewZeroShotClassificationPipeline constructs a zero-shot classification
// pipeline. Entailment and contradiction label indices are resolved from the
// model's label table; models without recognizable NLI labels fall back to
// the conventional positions (entailment 2, contradiction 0) with a warning.
func NewZeroShotClassificationPipeline(task string, c Collaborators) (Pipeline, error) {
	p := &ZeroShotClassificationPipeline{
		base:            newBase(task, c),
		entailmentID:    -1,
		contradictionID: -1,
	}

	for label, id := range p.model.Config().Label2ID {
		lower := strings.ToLower(label)
		if strings.HasPrefix(lower, "entail") {
			p.entailmentID = id
		}
		if strings.HasPrefix(lower, "contradict") {
			p.contradictionID = id
		}
	}
	if p.entailmentID < 0 {
		p.logger.Warn("model has no entailment label, assuming index 2",
			zap.String("task", task))
		p.entailmentID = 2
	}
	if p.contradictionID < 0 {
		p.logger.Warn("model has no contradiction label, assuming index 0",
			zap.String("task", task))
		p.contradictionID = 0
	}

	return p, nil
}

// Classify scores each text against the candidate labels. In single-label
// mode (the default, when there is more than one candidate) entailment logits
// are softmaxed jointly across labels so scores per text sum to 1. In
// multi-label mode, and always for a single candidate, each pair's
// (contradiction, entailment) logits are softmaxed on their own and the
// entailment probability reported. Results are sorted descending by score.
func (p *ZeroShotClassificationPipeline) Classify(ctx context.Context, texts, candidateLabels []string, opts ...ZeroShotOption) ([][]LabelScore, error) {
	if len(candidateLabels) == 0 {
		return nil, &backends.ValidationError{Field: "candidate_labels", Reason: "must not be empty"}
	}
	cfg := &zeroShotConfig{template: defaultHypothesisTemplate}
	for _, opt := range opts {
		opt(cfg)
	}

	pairwise := cfg.multiLabel || len(candidateLabels) == 1

	results := make([][]LabelScore, len(texts))
	for i, text := range texts {
		entailmentLogits := make([]float32, len(candidateLabels))
		scores := make([]LabelScore, len(candidateLabels))

		for j, label := range candidateLabels {
			hypothesis := strings.ReplaceAll(cfg.template, "{}", label)

			enc, err := p.tokenizer.Encode(ctx, []string{text}, &backends.EncodeOptions{
				Padding:          true,
				Truncation:       true,
				TextPair:         []string{hypothesis},
				AddSpecialTokens: true,
			})
			if err != nil {
				return nil, err
			}

			out, err := p.model.Forward(ctx, &backends.ModelInputs{
				InputIDs:      enc.InputIDs,
				AttentionMask: enc.AttentionMask,
				TokenTypeIDs:  enc.TokenTypeIDs,
			})
			if err != nil {
				return nil, err
			}

			logits := out.Logits[0]
			entailmentLogits[j] = logits[p.entailmentID]
			if pairwise {
				probs := Softmax([]float32{logits[p.contradictionID], logits[p.entailmentID]})
				scores[j] = LabelScore{Label: label, Score: probs[1]}
			}
		}

		if !pairwise {
			probs := Softmax(entailmentLogits)
			for j, label := range candidateLabels {
				scores[j] = LabelScore{Label: label, Score: probs[j]}
			}
		}

		sort.SliceStable(scores, func(a, b int) bool {
			return scores[a].Score > scores[b].Score
		})
		results[i] = scores
	}

	return results, nil
}

// ClassifyOne scores a single text against the candidate labels.
func (p *ZeroShotClassificationPipeline) ClassifyOne(ctx context.Context, text string, candidateLabels []string, opts ...ZeroShotOption) ([]LabelScore, error) {
	results, err := p.Classify(ctx, []string{text}, candidateLabels, opts...)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
