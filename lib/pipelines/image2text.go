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

// ImageToTextPipeline captions images with a vision encoder-decoder model.
type ImageToTextPipeline struct {
	base
}

// NewImageToTextPipeline constructs an image captioning pipeline.
func NewImageToTextPipeline(task string, c Collaborators) (Pipeline, error) {
	return &ImageToTextPipeline{base: newBase(task, c)}, nil
}

// Caption generates one caption per image. Each image runs through the model
// on its own so a failed decode of one image does not affect the others.
func (p *ImageToTextPipeline) Caption(ctx context.Context, images []image.Image, opts ...GenerateOption) ([]GeneratedText, error) {
	cfg := applyGenerateOptions(opts)

	results := make([]GeneratedText, len(images))
	for i, img := range images {
		inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Images: []image.Image{img}})
		if err != nil {
			return nil, err
		}

		sequences, err := p.model.Generate(ctx, inputs, cfg.generation)
		if err != nil {
			return nil, err
		}

		text, err := p.tokenizer.Decode(sequences[0], true)
		if err != nil {
			return nil, err
		}
		results[i] = GeneratedText{Text: text}
	}
	return results, nil
}

// CaptionOne captions a single image.
func (p *ImageToTextPipeline) CaptionOne(ctx context.Context, img image.Image, opts ...GenerateOption) (GeneratedText, error) {
	results, err := p.Caption(ctx, []image.Image{img}, opts...)
	if err != nil {
		return GeneratedText{}, err
	}
	return results[0], nil
}
