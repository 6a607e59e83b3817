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

// Package tokenizers provides default Tokenizer collaborators: a BERT-style
// WordPiece tokenizer and a tiktoken BPE tokenizer. Models shipping their own
// tokenizer files should use a loader that reads them; these implementations
// cover the common vocabularies.
package tokenizers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/decoder"
	"github.com/sugarme/tokenizer/model"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/util"

	"github.com/antflydb/taskpipe/lib/backends"
)

const defaultMaxLength = 512

// WordPieceTokenizer is a BERT-style tokenizer built on sugarme/tokenizer.
// Special tokens ([CLS], [SEP]) are assembled explicitly during Encode so
// that sequence pairs and pair-free encodings share one code path.
type WordPieceTokenizer struct {
	tk *tokenizer.Tokenizer

	clsID   int32
	sepID   int32
	padID   int32
	maskID  int32
	hasMask bool

	mu          sync.Mutex
	paddingSide backends.PaddingSide
}

// NewWordPieceTokenizer builds a WordPiece tokenizer from vocabulary text,
// one token per line with the line number as id.
func NewWordPieceTokenizer(vocabText string) (*WordPieceTokenizer, error) {
	vocab := make(model.Vocab)
	for i, line := range strings.Split(vocabText, "\n") {
		if line != "" {
			vocab[line] = i
		}
	}

	opts := util.NewParams(map[string]any{
		"unk_token": "[UNK]",
	})
	wp, err := wordpiece.New(vocab, opts)
	if err != nil {
		return nil, fmt.Errorf("creating wordpiece model: %w", err)
	}

	tk := tokenizer.NewTokenizer(wp)
	tk.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	tk.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	// decoder.DefaultWordpieceDecoder at v0.3.0 leaves its embedded
	// DecoderBase nil and panics on Decode; NewWordPieceDecoder builds the
	// same "##"/cleanup decoder with the internals wired.
	tk.WithDecoder(decoder.NewWordPieceDecoder("##", true))

	t := &WordPieceTokenizer{tk: tk, paddingSide: backends.PadRight}

	required := map[string]*int32{
		"[CLS]": &t.clsID,
		"[SEP]": &t.sepID,
		"[PAD]": &t.padID,
	}
	for token, dst := range required {
		id, ok := tk.TokenToId(token)
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", token)
		}
		*dst = int32(id)
	}
	if id, ok := tk.TokenToId("[MASK]"); ok {
		t.maskID = int32(id)
		t.hasMask = true
	}

	return t, nil
}

// Encode tokenizes a batch of texts, adding [CLS]/[SEP] special tokens,
// joining sequence pairs with a separator and segment ids, truncating to
// MaxLength and padding the batch to a uniform length.
func (t *WordPieceTokenizer) Encode(ctx context.Context, texts []string, opts *backends.EncodeOptions) (*backends.Encoding, error) {
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
	typeIDs := make([][]int32, len(texts))
	longest := 0

	for i, text := range texts {
		seq, err := t.tokenize(text)
		if err != nil {
			return nil, err
		}

		var item, types []int32
		if opts.AddSpecialTokens {
			item = append(item, t.clsID)
			types = append(types, 0)
		}
		item = append(item, seq...)
		for range seq {
			types = append(types, 0)
		}
		if opts.AddSpecialTokens {
			item = append(item, t.sepID)
			types = append(types, 0)
		}

		if i < len(opts.TextPair) && opts.TextPair[i] != "" {
			pair, err := t.tokenize(opts.TextPair[i])
			if err != nil {
				return nil, err
			}
			item = append(item, pair...)
			for range pair {
				types = append(types, 1)
			}
			if opts.AddSpecialTokens {
				item = append(item, t.sepID)
				types = append(types, 1)
			}
		}

		if opts.Truncation && len(item) > maxLength {
			item = item[:maxLength]
			types = types[:maxLength]
		}

		ids[i] = item
		typeIDs[i] = types
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
		types := make([]int32, target)

		pad := target - len(ids[i])
		offset := 0
		if side == backends.PadLeft {
			offset = pad
			for j := 0; j < pad; j++ {
				padded[j] = t.padID
			}
		} else {
			for j := len(ids[i]); j < target; j++ {
				padded[j] = t.padID
			}
		}
		copy(padded[offset:], ids[i])
		copy(types[offset:], typeIDs[i])
		for j := 0; j < len(ids[i]); j++ {
			mask[offset+j] = 1
		}

		enc.InputIDs[i] = padded
		enc.AttentionMask[i] = mask
		enc.TokenTypeIDs[i] = types
	}

	return enc, nil
}

func (t *WordPieceTokenizer) tokenize(text string) ([]int32, error) {
	encoded, err := t.tk.EncodeSingle(text)
	if err != nil {
		return nil, fmt.Errorf("tokenizing: %w", err)
	}
	ids := make([]int32, len(encoded.Ids))
	for i, id := range encoded.Ids {
		ids[i] = int32(id)
	}
	return ids, nil
}

// Decode converts token ids back to text.
func (t *WordPieceTokenizer) Decode(ids []int32, skipSpecialTokens bool) (string, error) {
	converted := make([]int, 0, len(ids))
	for _, id := range ids {
		if skipSpecialTokens && t.isSpecial(id) {
			continue
		}
		converted = append(converted, int(id))
	}
	return t.tk.Decode(converted, skipSpecialTokens), nil
}

// BatchDecode converts multiple token id sequences back to text.
func (t *WordPieceTokenizer) BatchDecode(ids [][]int32, skipSpecialTokens bool) ([]string, error) {
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

func (t *WordPieceTokenizer) isSpecial(id int32) bool {
	if id == t.clsID || id == t.sepID || id == t.padID {
		return true
	}
	return t.hasMask && id == t.maskID
}

// PadTokenID returns the [PAD] id.
func (t *WordPieceTokenizer) PadTokenID() int32 { return t.padID }

// SepTokenID returns the [SEP] id.
func (t *WordPieceTokenizer) SepTokenID() (int32, bool) { return t.sepID, true }

// MaskTokenID returns the [MASK] id, if the vocabulary has one.
func (t *WordPieceTokenizer) MaskTokenID() (int32, bool) { return t.maskID, t.hasMask }

// SetPaddingSide sets which side padding is applied to.
func (t *WordPieceTokenizer) SetPaddingSide(side backends.PaddingSide) {
	t.mu.Lock()
	t.paddingSide = side
	t.mu.Unlock()
}
