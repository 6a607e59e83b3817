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
	"fmt"
	"strings"

	"github.com/antflydb/taskpipe/lib/backends"
)

// Fake special token ids shared by the tests.
const (
	fakeCLS  int32 = 101
	fakeSEP  int32 = 102
	fakeMask int32 = 103
	fakePad  int32 = 0
)

// fakeTokenizer assigns ids by word order: the first distinct word seen is
// 1000, the next 1001, and so on. Encodings add [CLS]/[SEP] ids and pad to
// the longest item.
type fakeTokenizer struct {
	vocab   map[string]int32
	reverse map[int32]string
	side    backends.PaddingSide

	sepOK  bool
	maskOK bool
}

func newFakeTokenizer() *fakeTokenizer {
	return &fakeTokenizer{
		vocab:   make(map[string]int32),
		reverse: map[int32]string{fakeCLS: "[CLS]", fakeSEP: "[SEP]", fakeMask: "[MASK]", fakePad: "[PAD]"},
		side:    backends.PadRight,
		sepOK:   true,
		maskOK:  true,
	}
}

func (f *fakeTokenizer) wordID(word string) int32 {
	if word == "[MASK]" {
		return fakeMask
	}
	if id, ok := f.vocab[word]; ok {
		return id
	}
	id := int32(1000 + len(f.vocab))
	f.vocab[word] = id
	f.reverse[id] = word
	return id
}

func (f *fakeTokenizer) tokenize(text string) []int32 {
	var ids []int32
	for _, word := range strings.Fields(text) {
		ids = append(ids, f.wordID(word))
	}
	return ids
}

func (f *fakeTokenizer) Encode(ctx context.Context, texts []string, opts *backends.EncodeOptions) (*backends.Encoding, error) {
	if opts == nil {
		opts = &backends.EncodeOptions{}
	}

	ids := make([][]int32, len(texts))
	types := make([][]int32, len(texts))
	longest := 0
	for i, text := range texts {
		var item, itemTypes []int32
		if opts.AddSpecialTokens {
			item = append(item, fakeCLS)
			itemTypes = append(itemTypes, 0)
		}
		for _, id := range f.tokenize(text) {
			item = append(item, id)
			itemTypes = append(itemTypes, 0)
		}
		if opts.AddSpecialTokens {
			item = append(item, fakeSEP)
			itemTypes = append(itemTypes, 0)
		}
		if i < len(opts.TextPair) && opts.TextPair[i] != "" {
			for _, id := range f.tokenize(opts.TextPair[i]) {
				item = append(item, id)
				itemTypes = append(itemTypes, 1)
			}
			if opts.AddSpecialTokens {
				item = append(item, fakeSEP)
				itemTypes = append(itemTypes, 1)
			}
		}
		ids[i] = item
		types[i] = itemTypes
		if len(item) > longest {
			longest = len(item)
		}
	}

	enc := &backends.Encoding{
		InputIDs:      make([][]int32, len(texts)),
		AttentionMask: make([][]int32, len(texts)),
		TokenTypeIDs:  make([][]int32, len(texts)),
	}
	for i := range ids {
		target := len(ids[i])
		if opts.Padding {
			target = longest
		}
		padded := make([]int32, target)
		mask := make([]int32, target)
		itemTypes := make([]int32, target)

		offset := 0
		if f.side == backends.PadLeft {
			offset = target - len(ids[i])
		}
		copy(padded[offset:], ids[i])
		copy(itemTypes[offset:], types[i])
		for j := 0; j < len(ids[i]); j++ {
			mask[offset+j] = 1
		}

		enc.InputIDs[i] = padded
		enc.AttentionMask[i] = mask
		enc.TokenTypeIDs[i] = itemTypes
	}
	return enc, nil
}

func (f *fakeTokenizer) Decode(ids []int32, skipSpecialTokens bool) (string, error) {
	var words []string
	for _, id := range ids {
		if skipSpecialTokens && (id == fakeCLS || id == fakeSEP || id == fakePad || id == fakeMask) {
			continue
		}
		word, ok := f.reverse[id]
		if !ok {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		words = append(words, word)
	}
	return strings.Join(words, " "), nil
}

func (f *fakeTokenizer) BatchDecode(ids [][]int32, skipSpecialTokens bool) ([]string, error) {
	out := make([]string, len(ids))
	for i, seq := range ids {
		text, err := f.Decode(seq, skipSpecialTokens)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

func (f *fakeTokenizer) PadTokenID() int32 { return fakePad }

func (f *fakeTokenizer) SepTokenID() (int32, bool) { return fakeSEP, f.sepOK }

func (f *fakeTokenizer) MaskTokenID() (int32, bool) { return fakeMask, f.maskOK }

func (f *fakeTokenizer) SetPaddingSide(side backends.PaddingSide) { f.side = side }

// fakeChunkTokenizer additionally merges generated audio chunks, recording
// the strides it saw.
type fakeChunkTokenizer struct {
	*fakeTokenizer
	chunks []backends.GeneratedChunk
}

func (f *fakeChunkTokenizer) DecodeChunks(chunks []backends.GeneratedChunk, skipSpecialTokens bool) (string, error) {
	f.chunks = chunks
	var parts []string
	for _, chunk := range chunks {
		text, err := f.Decode(chunk.Tokens, skipSpecialTokens)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}

// fakeModel answers Forward and Generate from function fields and records
// whether Close was called.
type fakeModel struct {
	forward  func(inputs *backends.ModelInputs) (*backends.ModelOutput, error)
	generate func(inputs *backends.ModelInputs, cfg *backends.GenerationConfig) ([][]int32, error)
	config   *backends.ModelConfig
	closed   bool
}

func (m *fakeModel) Forward(ctx context.Context, inputs *backends.ModelInputs) (*backends.ModelOutput, error) {
	return m.forward(inputs)
}

func (m *fakeModel) Generate(ctx context.Context, inputs *backends.ModelInputs, cfg *backends.GenerationConfig) ([][]int32, error) {
	return m.generate(inputs, cfg)
}

func (m *fakeModel) Config() *backends.ModelConfig {
	if m.config == nil {
		return &backends.ModelConfig{}
	}
	return m.config
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

// fakeProcessor returns canned inputs and records the batches it processed.
type fakeProcessor struct {
	process func(batch *backends.MediaBatch) (*backends.ModelInputs, error)
	cfg     *backends.FeatureExtractorConfig

	batches []*backends.MediaBatch
}

func (p *fakeProcessor) Process(ctx context.Context, batch *backends.MediaBatch) (*backends.ModelInputs, error) {
	p.batches = append(p.batches, batch)
	if p.process != nil {
		return p.process(batch)
	}
	return &backends.ModelInputs{}, nil
}

func (p *fakeProcessor) FeatureExtractorConfig() *backends.FeatureExtractorConfig {
	if p.cfg == nil {
		return &backends.FeatureExtractorConfig{SamplingRate: 16000, ChunkLength: 30}
	}
	return p.cfg
}
