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
	"sort"
	"strings"

	"github.com/antflydb/taskpipe/lib/backends"
)

// defaultImageHypothesisTemplate turns a candidate label into a caption for
// the text encoder of a dual-encoder model.
const defaultImageHypothesisTemplate = "This is a photo of {}"

// ZeroShotImageClassificationPipeline classifies images against arbitrary
// candidate labels with a dual-encoder (CLIP-style) model: all captions and
// all images run in one forward pass and the per-image similarity row is
// softmaxed across labels.
type ZeroShotImageClassificationPipeline struct {
	base
}

// NewZeroShotImageClassificationPipeline constructs a zero-shot image
// classification pipeline.
func NewZeroShotImageClassificationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &ZeroShotImageClassificationPipeline{base: newBase(task, c)}, nil
}

// Classify scores each image against the candidate labels. Scores per image
// sum to 1 and are sorted descending.
func (p *ZeroShotImageClassificationPipeline) Classify(ctx context.Context, images []image.Image, candidateLabels []string, opts ...ZeroShotOption) ([][]LabelScore, error) {
	if len(candidateLabels) == 0 {
		return nil, &backends.ValidationError{Field: "candidate_labels", Reason: "must not be empty"}
	}
	cfg := &zeroShotConfig{template: defaultImageHypothesisTemplate}
	for _, opt := range opts {
		opt(cfg)
	}

	captions := make([]string, len(candidateLabels))
	for i, label := range candidateLabels {
		captions[i] = strings.ReplaceAll(cfg.template, "{}", label)
	}

	enc, err := p.tokenizer.Encode(ctx, captions, &backends.EncodeOptions{
		Padding:          true,
		Truncation:       true,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}

	inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Images: images})
	if err != nil {
		return nil, err
	}
	inputs.InputIDs = enc.InputIDs
	inputs.AttentionMask = enc.AttentionMask

	out, err := p.model.Forward(ctx, inputs)
	if err != nil {
		return nil, err
	}

	results := make([][]LabelScore, len(images))
	for i, row := range out.LogitsPerImage {
		probs := Softmax(row)
		scores := make([]LabelScore, len(candidateLabels))
		for j, label := range candidateLabels {
			scores[j] = LabelScore{Label: label, Score: probs[j]}
		}
		sort.SliceStable(scores, func(a, b int) bool {
			return scores[a].Score > scores[b].Score
		})
		results[i] = scores
	}

	return results, nil
}

// ClassifyOne scores a single image against the candidate labels.
func (p *ZeroShotImageClassificationPipeline) ClassifyOne(ctx context.Context, img image.Image, candidateLabels []string, opts ...ZeroShotOption) ([]LabelScore, error) {
	results, err := p.Classify(ctx, []image.Image{img}, candidateLabels, opts...)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
