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

// Package backends defines the collaborator contracts that task pipelines are
// built on: a Tokenizer (text to token ids and back), a Model (tensors to
// logits or generated token sequences), and a Processor (raw media to feature
// tensors). The package specifies only the shape of these collaborators;
// tokenization algorithms, tensor execution, and weight loading live behind
// the interfaces.
package backends

import (
	"context"
	"image"
)

// PaddingSide specifies which side of a sequence padding is applied to.
type PaddingSide string

const (
	// PadRight pads at the end of the sequence (the usual case).
	PadRight PaddingSide = "right"
	// PadLeft pads at the start of the sequence. Required for causal
	// generation so that continuations line up at the sequence end.
	PadLeft PaddingSide = "left"
)

// EncodeOptions controls tokenization of a batch of texts.
type EncodeOptions struct {
	// Padding pads all sequences in the batch to the longest one.
	Padding bool

	// Truncation truncates sequences longer than MaxLength.
	Truncation bool

	// MaxLength is the maximum sequence length when Truncation is set.
	// Zero means the tokenizer's own default.
	MaxLength int

	// TextPair holds optional second sequences, one per input text.
	// When set, each item is encoded as a (text, pair) sequence pair with a
	// separator between the two segments.
	TextPair []string

	// AddSpecialTokens controls whether model-specific special tokens
	// ([CLS], [SEP], BOS, EOS, ...) are added.
	AddSpecialTokens bool
}

// Encoding is the result of tokenizing a batch of texts.
type Encoding struct {
	// InputIDs contains token ids [batch, seq].
	InputIDs [][]int32

	// AttentionMask contains the attention mask [batch, seq]; 1 for real
	// tokens, 0 for padding.
	AttentionMask [][]int32

	// TokenTypeIDs contains segment ids [batch, seq] (optional; used by
	// BERT-style models for sequence pairs).
	TokenTypeIDs [][]int32
}

// Tokenizer converts between text and token id sequences.
type Tokenizer interface {
	// Encode tokenizes a batch of texts.
	Encode(ctx context.Context, texts []string, opts *EncodeOptions) (*Encoding, error)

	// Decode converts token ids back to text.
	Decode(ids []int32, skipSpecialTokens bool) (string, error)

	// BatchDecode converts multiple token id sequences back to text.
	BatchDecode(ids [][]int32, skipSpecialTokens bool) ([]string, error)

	// PadTokenID returns the id used for padding.
	PadTokenID() int32

	// SepTokenID returns the separator token id, if the vocabulary has one.
	SepTokenID() (int32, bool)

	// MaskTokenID returns the mask token id, if the vocabulary has one.
	MaskTokenID() (int32, bool)

	// SetPaddingSide sets which side padding is applied to.
	SetPaddingSide(side PaddingSide)
}

// TranslationInputBuilder is implemented by tokenizers that build
// language-pair specific inputs (e.g. NLLB/M2M style language codes).
// Translation pipelines use it in place of the plain Encode step when present.
type TranslationInputBuilder interface {
	BuildTranslationInputs(ctx context.Context, texts []string, opts *EncodeOptions, srcLang, tgtLang string) (*Encoding, error)
}

// GeneratedChunk is one windowed slice of a long audio signal after
// generation. Stride values are in seconds; sample-accurate overlap metadata
// is converted before chunks are handed to the decoder.
type GeneratedChunk struct {
	// Tokens is the generated token id sequence for this window.
	Tokens []int32

	// Stride is (total window length, left overlap, right overlap) in
	// seconds. The first window has zero left overlap and the last window
	// zero right overlap.
	Stride [3]float64

	// IsLast marks the final window of the signal.
	IsLast bool
}

// ChunkDecoder is implemented by tokenizers that can merge generated token
// sequences from overlapping audio windows into a single transcript,
// reconciling token-level timestamp information across the strides.
type ChunkDecoder interface {
	DecodeChunks(chunks []GeneratedChunk, skipSpecialTokens bool) (string, error)
}

// Model runs inference on encoded inputs.
type Model interface {
	// Forward runs a single forward pass. Different model families populate
	// different subsets of ModelOutput.
	Forward(ctx context.Context, inputs *ModelInputs) (*ModelOutput, error)

	// Generate runs autoregressive generation and returns one generated
	// token id sequence per batch item. The returned sequences exclude the
	// prompt tokens.
	Generate(ctx context.Context, inputs *ModelInputs, cfg *GenerationConfig) ([][]int32, error)

	// Config returns the model's static configuration.
	Config() *ModelConfig

	// Close releases resources held by the model.
	Close() error
}

// MediaBatch is a batch of raw media inputs for a Processor.
type MediaBatch struct {
	// Images holds decoded images, one per batch item.
	Images []image.Image

	// Audio holds mono float32 sample buffers, one per batch item, at the
	// processor's sampling rate.
	Audio [][]float32
}

// FeatureExtractorConfig describes a Processor's feature extraction
// parameters.
type FeatureExtractorConfig struct {
	// SamplingRate is the expected audio sampling rate in Hz.
	SamplingRate int `json:"sampling_rate"`

	// ChunkLength is the model's native audio context in seconds.
	ChunkLength int `json:"chunk_length"`
}

// Processor converts raw media into model feature tensors.
type Processor interface {
	// Process converts a media batch into model inputs (pixel values or
	// audio features).
	Process(ctx context.Context, batch *MediaBatch) (*ModelInputs, error)

	// FeatureExtractorConfig returns the processor's extraction parameters.
	FeatureExtractorConfig() *FeatureExtractorConfig
}

// SegmentationOptions controls segmentation post-processing.
type SegmentationOptions struct {
	// Threshold is the minimum class score to keep a query.
	Threshold float32

	// MaskThreshold is the threshold for binarizing mask logits.
	MaskThreshold float32

	// OverlapMaskAreaThreshold is the minimum surviving mask area fraction
	// after overlap resolution.
	OverlapMaskAreaThreshold float32

	// LabelIDsToFuse lists label ids whose instances are fused into one
	// segment.
	LabelIDsToFuse []int

	// TargetSize is the (height, width) the segmentation map is produced at.
	TargetSize [2]int
}

// SegmentInfo describes one segment of a segmentation map.
type SegmentInfo struct {
	// ID is the segment's value in the segmentation map, unique within one
	// image's result.
	ID int32

	// LabelID indexes the model's id2label table.
	LabelID int

	// Score is the segment's confidence in [0,1].
	Score float32
}

// SegmentationMap is a processor's post-processed segmentation of one image.
type SegmentationMap struct {
	// Segmentation assigns a segment id to every pixel, row-major
	// [Height*Width].
	Segmentation []int32

	// Height and Width are the map dimensions.
	Height, Width int

	// Segments describes each distinct id present in Segmentation.
	Segments []SegmentInfo
}

// PanopticPostProcessor is implemented by processors that support panoptic
// segmentation post-processing.
type PanopticPostProcessor interface {
	PostProcessPanopticSegmentation(out *ModelOutput, opts *SegmentationOptions) ([]*SegmentationMap, error)
}

// InstancePostProcessor is implemented by processors that support instance
// segmentation post-processing.
type InstancePostProcessor interface {
	PostProcessInstanceSegmentation(out *ModelOutput, opts *SegmentationOptions) ([]*SegmentationMap, error)
}

// SemanticPostProcessor is implemented by processors that support semantic
// segmentation post-processing.
type SemanticPostProcessor interface {
	PostProcessSemanticSegmentation(out *ModelOutput, opts *SegmentationOptions) ([]*SegmentationMap, error)
}

// RawDetection is one thresholded detection before label resolution.
type RawDetection struct {
	// Score is the detection confidence in [0,1].
	Score float32

	// ClassID indexes the model's id2label table.
	ClassID int

	// Box is (xmin, ymin, xmax, ymax) in pixel coordinates.
	Box [4]float32
}

// DetectionPostProcessor is implemented by processors that support object
// detection post-processing.
type DetectionPostProcessor interface {
	PostProcessObjectDetection(out *ModelOutput, threshold float32) ([][]RawDetection, error)
}

// LoadOptions configures collaborator loading.
type LoadOptions struct {
	// Quantized selects quantized weight files where available.
	Quantized bool

	// CacheDir overrides the default download cache location.
	CacheDir string

	// LocalFilesOnly disables network access during loading.
	LocalFilesOnly bool

	// Revision selects a specific model revision.
	Revision string
}

// TokenizerLoader loads a Tokenizer for a model id.
type TokenizerLoader interface {
	LoadTokenizer(ctx context.Context, modelID string, opts *LoadOptions) (Tokenizer, error)
}

// ModelLoader loads a Model for a model id.
type ModelLoader interface {
	LoadModel(ctx context.Context, modelID string, opts *LoadOptions) (Model, error)
}

// ProcessorLoader loads a Processor for a model id.
type ProcessorLoader interface {
	LoadProcessor(ctx context.Context, modelID string, opts *LoadOptions) (Processor, error)
}

// Loaders bundles the collaborator loaders a pipeline factory draws from.
// Load errors propagate to the caller unwrapped so that network and storage
// failures stay distinguishable from usage errors.
type Loaders struct {
	Tokenizer TokenizerLoader
	Model     ModelLoader
	Processor ProcessorLoader
}
