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

package taskpipe

import (
	"context"
	"sync"

	"github.com/antflydb/taskpipe/lib/backends"
)

// stubTokenizer is the smallest possible backends.Tokenizer: every text
// becomes a single token.
type stubTokenizer struct{}

func (stubTokenizer) Encode(ctx context.Context, texts []string, opts *backends.EncodeOptions) (*backends.Encoding, error) {
	enc := &backends.Encoding{
		InputIDs:      make([][]int32, len(texts)),
		AttentionMask: make([][]int32, len(texts)),
		TokenTypeIDs:  make([][]int32, len(texts)),
	}
	for i := range texts {
		enc.InputIDs[i] = []int32{1}
		enc.AttentionMask[i] = []int32{1}
		enc.TokenTypeIDs[i] = []int32{0}
	}
	return enc, nil
}

func (stubTokenizer) Decode(ids []int32, skipSpecialTokens bool) (string, error) {
	return "", nil
}

func (stubTokenizer) BatchDecode(ids [][]int32, skipSpecialTokens bool) ([]string, error) {
	return make([]string, len(ids)), nil
}

func (stubTokenizer) PadTokenID() int32 { return 0 }

func (stubTokenizer) SepTokenID() (int32, bool) { return 2, true }

func (stubTokenizer) MaskTokenID() (int32, bool) { return 3, true }

func (stubTokenizer) SetPaddingSide(side backends.PaddingSide) {}

// stubModel records Close calls and answers every Forward with one logit row.
type stubModel struct {
	id     string
	closed bool
}

func (m *stubModel) Forward(ctx context.Context, inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
	logits := make([][]float32, len(inputs.InputIDs))
	for i := range logits {
		logits[i] = []float32{0, 1}
	}
	return &backends.ModelOutput{Logits: logits}, nil
}

func (m *stubModel) Generate(ctx context.Context, inputs *backends.ModelInputs, cfg *backends.GenerationConfig) ([][]int32, error) {
	return [][]int32{{1}}, nil
}

func (m *stubModel) Config() *backends.ModelConfig {
	return &backends.ModelConfig{
		ID2Label: map[int]string{0: "NEGATIVE", 1: "POSITIVE"},
	}
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}

type stubProcessor struct{}

func (stubProcessor) Process(ctx context.Context, batch *backends.MediaBatch) (*backends.ModelInputs, error) {
	return &backends.ModelInputs{}, nil
}

func (stubProcessor) FeatureExtractorConfig() *backends.FeatureExtractorConfig {
	return &backends.FeatureExtractorConfig{SamplingRate: 16000, ChunkLength: 30}
}

// stubLoaders counts loads, remembers the model ids it saw, and can fail on
// demand.
type stubLoaders struct {
	mu sync.Mutex

	tokenizerLoads int
	modelLoads     int
	processorLoads int

	modelIDs []string
	models   []*stubModel

	modelErr error
}

func (l *stubLoaders) LoadTokenizer(ctx context.Context, modelID string, opts *backends.LoadOptions) (backends.Tokenizer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokenizerLoads++
	return stubTokenizer{}, nil
}

func (l *stubLoaders) LoadModel(ctx context.Context, modelID string, opts *backends.LoadOptions) (backends.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.modelErr != nil {
		return nil, l.modelErr
	}
	l.modelLoads++
	l.modelIDs = append(l.modelIDs, modelID)
	m := &stubModel{id: modelID}
	l.models = append(l.models, m)
	return m, nil
}

func (l *stubLoaders) LoadProcessor(ctx context.Context, modelID string, opts *backends.LoadOptions) (backends.Processor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.processorLoads++
	return stubProcessor{}, nil
}

func (l *stubLoaders) loaders() backends.Loaders {
	return backends.Loaders{Tokenizer: l, Model: l, Processor: l}
}
