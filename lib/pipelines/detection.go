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

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	XMin float32 `json:"xmin"`
	YMin float32 `json:"ymin"`
	XMax float32 `json:"xmax"`
	YMax float32 `json:"ymax"`
}

// Detection is one detected object.
type Detection struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
	Box   Box     `json:"box"`
}

// DetectOption configures an object detection call.
type DetectOption func(*detectConfig)

type detectConfig struct {
	threshold float32
}

// WithDetectionThreshold sets the minimum score for a detection to be kept.
// The default is 0.9.
func WithDetectionThreshold(t float32) DetectOption {
	return func(c *detectConfig) {
		c.threshold = t
	}
}

// ObjectDetectionPipeline locates and labels objects in an image.
type ObjectDetectionPipeline struct {
	base
}

// NewObjectDetectionPipeline constructs an object detection pipeline.
func NewObjectDetectionPipeline(task string, c Collaborators) (Pipeline, error) {
	return &ObjectDetectionPipeline{base: newBase(task, c)}, nil
}

// Detect finds objects in one image scoring above the threshold. The
// processor's post-processing rescales boxes to the image's pixel
// coordinates.
func (p *ObjectDetectionPipeline) Detect(ctx context.Context, img image.Image, opts ...DetectOption) ([]Detection, error) {
	cfg := &detectConfig{threshold: 0.9}
	for _, opt := range opts {
		opt(cfg)
	}

	pp, ok := p.processor.(backends.DetectionPostProcessor)
	if !ok {
		return nil, &backends.ValidationError{
			Field:  "processor",
			Reason: "processor does not support object detection post-processing",
		}
	}

	inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Images: []image.Image{img}})
	if err != nil {
		return nil, err
	}

	out, err := p.model.Forward(ctx, inputs)
	if err != nil {
		return nil, err
	}

	raw, err := pp.PostProcessObjectDetection(out, cfg.threshold)
	if err != nil {
		return nil, err
	}

	config := p.model.Config()
	detections := make([]Detection, len(raw[0]))
	for i, d := range raw[0] {
		detections[i] = Detection{
			Label: config.Label(d.ClassID),
			Score: d.Score,
			Box: Box{
				XMin: d.Box[0],
				YMin: d.Box[1],
				XMax: d.Box[2],
				YMax: d.Box[3],
			},
		}
	}
	return detections, nil
}
