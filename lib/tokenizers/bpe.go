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

package tokenizers

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/antflydb/taskpipe/lib/backends"
)

func init() {
	// Offline loader with embedded dictionaries, no network requests.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// BPETokenizer is a byte-pair tokenizer built on tiktoken-go. It carries no
// [SEP]/[MASK] special tokens, so it suits the generation pipelines rather
// than the BERT-style ones; padding uses id 0 with a zeroed attention mask.
type BPETokenizer struct {
	tk *tiktoken.Tiktoken

	mu          sync.Mutex
	paddingSide backends.PaddingSide
}

// NewBPETokenizer creates a BPE tokenizer for a tiktoken encoding name
// (cl100k_base, o200k_base, p50k_base, r50k_base). Empty selects cl100k_base.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	tk, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("getting tiktoken encoding %q: %w", encoding, err)
	}
	return &BPETokenizer{tk: tk, paddingSide: backends.PadRight}, nil
}

// Encode tokenizes a batch of texts. Sequence pairs concatenate without a
// separator, which matches how BPE models without segment embeddings consume
// them.
func (t *BPETokenizer) Encode(ctx context.Context, texts []string, opts *backends.EncodeOptions) (*backends.Encoding, error) {
	if opts == nil {
		opts = &backends.EncodeOptions{}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxLength := opts.MaxLength
	if maxLength == 0 {
		maxLength = defaultMaxLength
	}

	ids := make([][]int32, len(texts))
	longest := 0
	for i, text := range texts {
		if i < len(opts.TextPair) && opts.TextPair[i] != "" {
			text = text + "\n" + opts.TextPair[i]
		}
		tokens := t.tk.Encode(text, nil, nil)
		item := make([]int32, len(tokens))
		for j, id := range tokens {
			item[j] = int32(id)
		}
		if opts.Truncation && len(item) > maxLength {
			item = item[:maxLength]
		}
		ids[i] = item
		if len(item) > longest {
			longest = len(item)
		}
	}

	enc := &backends.Encoding{
		InputIDs:      make([][]int32, len(texts)),
		AttentionMask: make([][]int32, len(texts)),
		TokenTypeIDs:  make([][]int32, len(texts)),
	}

	t.mu.Lock()
	side := t.paddingSide
	t.mu.Unlock()

	for i := range ids {
		target := len(ids[i])
		if opts.Padding {
			target = longest
		}
		padded := make([]int32, target)
		mask := make([]int32, target)

		offset := 0
		if side == backends.PadLeft {
			offset = target - len(ids[i])
		}
		copy(padded[offset:], ids[i])
		for j := 0; j < len(ids[i]); j++ {
			mask[offset+j] = 1
		}

		enc.InputIDs[i] = padded
		enc.AttentionMask[i] = mask
		enc.TokenTypeIDs[i] = make([]int32, target)
	}

	return enc, nil
}

// Decode converts token ids back to text. BPE encodings have no special
// tokens, so skipSpecialTokens has no effect.
func (t *BPETokenizer) Decode(ids []int32, skipSpecialTokens bool) (string, error) {
	converted := make([]int, len(ids))
	for i, id := range ids {
		converted[i] = int(id)
	}
	return t.tk.Decode(converted), nil
}

// BatchDecode converts multiple token id sequences back to text.
func (t *BPETokenizer) BatchDecode(ids [][]int32, skipSpecialTokens bool) ([]string, error) {
	out := make([]string, len(ids))
	for i, seq := range ids {
		text, err := t.Decode(seq, skipSpecialTokens)
		if err != nil {
			return nil, err
		}
		out[i] = text
	}
	return out, nil
}

// PadTokenID returns 0; BPE encodings carry no dedicated padding token.
func (t *BPETokenizer) PadTokenID() int32 { return 0 }

// SepTokenID reports that no separator token exists.
func (t *BPETokenizer) SepTokenID() (int32, bool) { return 0, false }

// MaskTokenID reports that no mask token exists.
func (t *BPETokenizer) MaskTokenID() (int32, bool) { return 0, false }

// SetPaddingSide sets which side padding is applied to.
func (t *BPETokenizer) SetPaddingSide(side backends.PaddingSide) {
	t.mu.Lock()
	t.paddingSide = side
	t.mu.Unlock()
}
