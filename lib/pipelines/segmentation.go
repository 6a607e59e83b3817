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

// Segment is one region of a segmented image.
type Segment struct {
	// Label is the region's class name.
	Label string `json:"label"`

	// Score is the region's confidence in [0,1].
	Score float32 `json:"score"`

	// Mask is a binary per-pixel mask, row-major [Height*Width]; true marks
	// pixels belonging to this segment.
	Mask []bool `json:"-"`

	// Height and Width are the mask dimensions.
	Height int `json:"height"`
	Width  int `json:"width"`
}

// SegmentOption configures a segmentation call.
type SegmentOption func(*segmentConfig)

type segmentConfig struct {
	opts    backends.SegmentationOptions
	subtask string
}

// WithSegmentationThreshold sets the minimum class score to keep a query.
func WithSegmentationThreshold(t float32) SegmentOption {
	return func(c *segmentConfig) {
		c.opts.Threshold = t
	}
}

// WithMaskThreshold sets the threshold for binarizing mask logits.
func WithMaskThreshold(t float32) SegmentOption {
	return func(c *segmentConfig) {
		c.opts.MaskThreshold = t
	}
}

// WithOverlapMaskAreaThreshold sets the minimum surviving mask area fraction
// after overlap resolution.
func WithOverlapMaskAreaThreshold(t float32) SegmentOption {
	return func(c *segmentConfig) {
		c.opts.OverlapMaskAreaThreshold = t
	}
}

// WithSubtask forces a specific segmentation subtask ("panoptic", "instance"
// or "semantic") instead of probing the processor's capabilities.
func WithSubtask(subtask string) SegmentOption {
	return func(c *segmentConfig) {
		c.subtask = subtask
	}
}

// ImageSegmentationPipeline partitions an image into labeled regions.
type ImageSegmentationPipeline struct {
	base
}

// NewImageSegmentationPipeline constructs an image segmentation pipeline.
func NewImageSegmentationPipeline(task string, c Collaborators) (Pipeline, error) {
	return &ImageSegmentationPipeline{base: newBase(task, c)}, nil
}

// Segment partitions one image into labeled regions. Without an explicit
// subtask the processor's post-processing capabilities are probed in order
// panoptic, instance, semantic; semantic maps carry no per-segment scores and
// are rejected here, matching the panoptic/instance output contract.
func (p *ImageSegmentationPipeline) Segment(ctx context.Context, img image.Image, opts ...SegmentOption) ([]Segment, error) {
	cfg := &segmentConfig{
		opts: backends.SegmentationOptions{
			Threshold:                0.9,
			MaskThreshold:            0.5,
			OverlapMaskAreaThreshold: 0.8,
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	bounds := img.Bounds()
	cfg.opts.TargetSize = [2]int{bounds.Dy(), bounds.Dx()}

	inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Images: []image.Image{img}})
	if err != nil {
		return nil, err
	}

	out, err := p.model.Forward(ctx, inputs)
	if err != nil {
		return nil, err
	}

	maps, err := p.postProcess(out, cfg)
	if err != nil {
		return nil, err
	}

	return segmentsFromMap(maps[0], p.model.Config()), nil
}

func (p *ImageSegmentationPipeline) postProcess(out *backends.ModelOutput, cfg *segmentConfig) ([]*backends.SegmentationMap, error) {
	switch cfg.subtask {
	case "panoptic":
		if pp, ok := p.processor.(backends.PanopticPostProcessor); ok {
			return pp.PostProcessPanopticSegmentation(out, &cfg.opts)
		}
	case "instance":
		if pp, ok := p.processor.(backends.InstancePostProcessor); ok {
			return pp.PostProcessInstanceSegmentation(out, &cfg.opts)
		}
	case "":
		if pp, ok := p.processor.(backends.PanopticPostProcessor); ok {
			return pp.PostProcessPanopticSegmentation(out, &cfg.opts)
		}
		if pp, ok := p.processor.(backends.InstancePostProcessor); ok {
			return pp.PostProcessInstanceSegmentation(out, &cfg.opts)
		}
		return nil, &backends.UnsupportedSubtaskError{Subtask: "semantic"}
	}
	return nil, &backends.UnsupportedSubtaskError{Subtask: cfg.subtask}
}

// segmentsFromMap converts a segmentation map into per-segment binary masks.
// Each segment's mask marks exactly the pixels holding its id.
func segmentsFromMap(m *backends.SegmentationMap, config *backends.ModelConfig) []Segment {
	segments := make([]Segment, len(m.Segments))
	for i, info := range m.Segments {
		mask := make([]bool, len(m.Segmentation))
		for j, id := range m.Segmentation {
			mask[j] = id == info.ID
		}
		segments[i] = Segment{
			Label:  config.Label(info.LabelID),
			Score:  info.Score,
			Mask:   mask,
			Height: m.Height,
			Width:  m.Width,
		}
	}
	return segments
}
