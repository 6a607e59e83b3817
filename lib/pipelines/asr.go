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

// Transcript is the merged transcription of one audio signal.
type Transcript struct {
	Text string `json:"text"`
}

// AudioChunk is one window of a long signal before feature extraction.
// Strides are in samples here; they are converted to seconds when the
// generated chunks are handed to the decoder.
type AudioChunk struct {
	// Samples is the window's slice of the signal, including overlap.
	Samples []float32

	// Stride is (window length, left overlap, right overlap) in samples.
	Stride [3]int

	// IsLast marks the final window.
	IsLast bool
}

// TranscribeOption configures a transcription call.
type TranscribeOption func(*transcribeConfig)

type transcribeConfig struct {
	chunkLengthSeconds  float64
	strideLengthSeconds float64
	generation          *backends.GenerationConfig
	onChunk             func(done, total int)
}

// WithChunkLength enables chunked transcription of signals longer than the
// model's context, using windows of the given length in seconds.
func WithChunkLength(seconds float64) TranscribeOption {
	return func(c *transcribeConfig) {
		c.chunkLengthSeconds = seconds
	}
}

// WithStrideLength sets the overlap between adjacent windows in seconds.
// The default is one sixth of the chunk length.
func WithStrideLength(seconds float64) TranscribeOption {
	return func(c *transcribeConfig) {
		c.strideLengthSeconds = seconds
	}
}

// WithChunkCallback registers a progress callback invoked after each window
// finishes generating.
func WithChunkCallback(fn func(done, total int)) TranscribeOption {
	return func(c *transcribeConfig) {
		c.onChunk = fn
	}
}

// WithTranscribeGenerationConfig replaces the generation parameters used per
// window.
func WithTranscribeGenerationConfig(gc *backends.GenerationConfig) TranscribeOption {
	return func(c *transcribeConfig) {
		if gc != nil {
			c.generation = gc
		}
	}
}

// ChunkAudio splits a signal into overlapping windows. The window is
// chunkSeconds*rate samples and adjacent windows share strideSeconds*rate
// samples on each side, so the cursor advances window-2*stride per step. The
// first window has no left overlap and the last no right overlap. A stride of
// at least half the chunk length leaves no forward progress and is rejected.
func ChunkAudio(samples []float32, rate int, chunkSeconds, strideSeconds float64) ([]AudioChunk, error) {
	if strideSeconds == 0 {
		strideSeconds = chunkSeconds / 6
	}
	if strideSeconds*2 >= chunkSeconds {
		return nil, &backends.ValidationError{
			Field:  "stride_length_s",
			Reason: "stride must be smaller than half the chunk length",
		}
	}

	window := int(chunkSeconds * float64(rate))
	stride := int(strideSeconds * float64(rate))
	jump := window - 2*stride

	var chunks []AudioChunk
	for offset := 0; ; offset += jump {
		end := offset + window
		if end > len(samples) {
			end = len(samples)
		}

		left := stride
		if offset == 0 {
			left = 0
		}
		isLast := offset+jump >= len(samples)
		right := stride
		if isLast {
			right = 0
		}

		chunks = append(chunks, AudioChunk{
			Samples: samples[offset:end],
			Stride:  [3]int{end - offset, left, right},
			IsLast:  isLast,
		})
		if isLast {
			break
		}
	}
	return chunks, nil
}

// SpeechRecognitionPipeline transcribes audio with a speech encoder-decoder
// model.
type SpeechRecognitionPipeline struct {
	base
}

// NewSpeechRecognitionPipeline constructs a speech recognition pipeline.
func NewSpeechRecognitionPipeline(task string, c Collaborators) (Pipeline, error) {
	return &SpeechRecognitionPipeline{base: newBase(task, c)}, nil
}

// Transcribe converts mono float32 samples at the processor's sampling rate
// into text. Without WithChunkLength the whole signal is one window. With it,
// the signal is split into overlapping windows, each window is generated
// sequentially, and the tokenizer reconciles the overlap when merging.
func (p *SpeechRecognitionPipeline) Transcribe(ctx context.Context, samples []float32, opts ...TranscribeOption) (Transcript, error) {
	cfg := &transcribeConfig{generation: backends.DefaultGenerationConfig()}
	for _, opt := range opts {
		opt(cfg)
	}
	return p.transcribe(ctx, samples, cfg)
}

// TranscribeBatch transcribes a batch of signals, one after another. Each
// signal is windowed and generated independently; the chunk callback fires
// per window of the signal currently being transcribed.
func (p *SpeechRecognitionPipeline) TranscribeBatch(ctx context.Context, signals [][]float32, opts ...TranscribeOption) ([]Transcript, error) {
	cfg := &transcribeConfig{generation: backends.DefaultGenerationConfig()}
	for _, opt := range opts {
		opt(cfg)
	}

	results := make([]Transcript, len(signals))
	for i, samples := range signals {
		transcript, err := p.transcribe(ctx, samples, cfg)
		if err != nil {
			return nil, err
		}
		results[i] = transcript
	}
	return results, nil
}

func (p *SpeechRecognitionPipeline) transcribe(ctx context.Context, samples []float32, cfg *transcribeConfig) (Transcript, error) {
	rate := p.processor.FeatureExtractorConfig().SamplingRate

	var chunks []AudioChunk
	if cfg.chunkLengthSeconds > 0 {
		var err error
		chunks, err = ChunkAudio(samples, rate, cfg.chunkLengthSeconds, cfg.strideLengthSeconds)
		if err != nil {
			return Transcript{}, err
		}
	} else {
		chunks = []AudioChunk{{
			Samples: samples,
			Stride:  [3]int{len(samples), 0, 0},
			IsLast:  true,
		}}
	}

	generated := make([]backends.GeneratedChunk, len(chunks))
	for i, chunk := range chunks {
		inputs, err := p.processor.Process(ctx, &backends.MediaBatch{Audio: [][]float32{chunk.Samples}})
		if err != nil {
			return Transcript{}, err
		}

		sequences, err := p.model.Generate(ctx, inputs, cfg.generation)
		if err != nil {
			return Transcript{}, err
		}

		generated[i] = backends.GeneratedChunk{
			Tokens: sequences[0],
			Stride: [3]float64{
				float64(chunk.Stride[0]) / float64(rate),
				float64(chunk.Stride[1]) / float64(rate),
				float64(chunk.Stride[2]) / float64(rate),
			},
			IsLast: chunk.IsLast,
		}

		if cfg.onChunk != nil {
			cfg.onChunk(i+1, len(chunks))
		}
	}

	if decoder, ok := p.tokenizer.(backends.ChunkDecoder); ok {
		text, err := decoder.DecodeChunks(generated, true)
		if err != nil {
			return Transcript{}, err
		}
		return Transcript{Text: text}, nil
	}

	if len(generated) > 1 {
		return Transcript{}, &backends.ValidationError{
			Field:  "tokenizer",
			Reason: "chunked transcription requires a tokenizer that can merge chunks",
		}
	}

	text, err := p.tokenizer.Decode(generated[0].Tokens, true)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Text: text}, nil
}
