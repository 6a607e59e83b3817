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

package backends

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// ModelInputs contains the inputs for model inference.
// Different model families use different subsets of fields.
type ModelInputs struct {
	// Text inputs
	InputIDs      [][]int32 // Token ids [batch, seq]
	AttentionMask [][]int32 // Attention mask [batch, seq]
	TokenTypeIDs  [][]int32 // Optional segment ids [batch, seq]

	// Image inputs (vision models), NCHW flattened
	PixelValues   []float32
	ImageBatch    int
	ImageChannels int
	ImageHeight   int
	ImageWidth    int

	// Audio inputs (speech models), [batch, frames, mels] flattened
	InputFeatures []float32
	AudioBatch    int
	AudioFrames   int
	AudioMels     int
}

// ModelOutput contains the outputs of a forward pass.
// Different model families populate different subsets of fields.
type ModelOutput struct {
	// Logits holds sequence-level scores [batch, num_labels] or, for
	// dual-encoder models, per-text scores.
	Logits [][]float32

	// TokenLogits holds per-position scores [batch, seq, num_labels] for
	// token classification, or [batch, seq, vocab] for masked language
	// models.
	TokenLogits [][][]float32

	// StartLogits and EndLogits hold extractive QA span scores
	// [batch, seq].
	StartLogits [][]float32
	EndLogits   [][]float32

	// LastHiddenState holds encoder activations [batch, seq, hidden].
	LastHiddenState [][][]float32

	// LogitsPerImage holds the image-text similarity matrix
	// [images, texts] produced by dual-encoder models.
	LogitsPerImage [][]float32

	// SegmentationClassLogits holds per-query class scores
	// [batch, query, class] for segmentation models.
	SegmentationClassLogits [][][]float32

	// SegmentationMaskLogits holds per-query mask logits
	// [batch, query, height*width] for segmentation models.
	SegmentationMaskLogits [][][]float32

	// DetectionLogits and DetectionBoxes hold raw detection outputs
	// [batch, query, class] and [batch, query, 4].
	DetectionLogits [][][]float32
	DetectionBoxes  [][][]float32
}

// TaskParams holds per-task generation defaults from a model's
// task_specific_params table.
type TaskParams struct {
	// Prefix is prepended to every input before tokenizing.
	Prefix string `json:"prefix,omitempty"`

	// MaxLength caps generation length for the task.
	MaxLength int `json:"max_length,omitempty"`
}

// ModelConfig is the static configuration shipped with a model.
type ModelConfig struct {
	// ModelType is the architecture family (bert, t5, whisper, ...).
	ModelType string `json:"model_type,omitempty"`

	// ID2Label maps label indices to label names.
	ID2Label map[int]string `json:"id2label,omitempty"`

	// Label2ID maps label names to label indices.
	Label2ID map[string]int `json:"label2id,omitempty"`

	// Prefix is a model-wide input prefix for text2text models.
	Prefix string `json:"prefix,omitempty"`

	// TaskSpecificParams holds per-task overrides keyed by task name.
	TaskSpecificParams map[string]TaskParams `json:"task_specific_params,omitempty"`

	// MaxSourcePositions is the encoder's maximum input length (audio
	// frames for speech models).
	MaxSourcePositions int `json:"max_source_positions,omitempty"`
}

// Label returns the name for a label index, falling back to LABEL_<n> when
// the table has no entry.
func (c *ModelConfig) Label(id int) string {
	if c != nil && c.ID2Label != nil {
		if name, ok := c.ID2Label[id]; ok {
			return name
		}
	}
	return fmt.Sprintf("LABEL_%d", id)
}

// TaskPrefix resolves the input prefix for a task: the task-specific entry
// wins over the model-wide prefix.
func (c *ModelConfig) TaskPrefix(task string) string {
	if c == nil {
		return ""
	}
	if params, ok := c.TaskSpecificParams[task]; ok && params.Prefix != "" {
		return params.Prefix
	}
	return c.Prefix
}

// ParseModelConfig parses a config.json payload.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	var config ModelConfig
	if err := sonic.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing model config: %w", err)
	}
	return &config, nil
}

// GenerationConfig holds parameters for autoregressive generation.
type GenerationConfig struct {
	// MaxNewTokens is the maximum number of tokens to generate.
	MaxNewTokens int

	// MinLength is the minimum generation length.
	MinLength int

	// DoSample enables sampling (vs greedy decoding).
	DoSample bool

	// Temperature for sampling (higher = more random).
	Temperature float32

	// TopK limits sampling to the top K tokens.
	TopK int

	// TopP (nucleus sampling) limits to tokens with cumulative
	// probability <= TopP.
	TopP float32

	// RepetitionPenalty penalizes repeated tokens.
	RepetitionPenalty float32

	// NumBeams for beam search (1 = greedy/sampling).
	NumBeams int

	// EarlyStopping for beam search.
	EarlyStopping bool
}

// DefaultGenerationConfig returns sensible defaults for generation.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		MaxNewTokens:      256,
		MinLength:         1,
		DoSample:          false, // greedy by default
		Temperature:       1.0,
		TopK:              50,
		TopP:              1.0,
		RepetitionPenalty: 1.0,
		NumBeams:          1,
	}
}
