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
	"sort"

	"github.com/antflydb/taskpipe/lib/backends"
)

// Answer is one extracted answer span.
type Answer struct {
	// Text is the decoded answer with special tokens stripped.
	Text string `json:"answer"`

	// Score is the product of the start and end probabilities, each taken
	// from an independent softmax over the sequence.
	Score float32 `json:"score"`

	// Start and End are the span's token indices (inclusive) in the
	// encoded sequence.
	Start int `json:"start"`
	End   int `json:"end"`
}

// ScoredSpan is a candidate token range produced by the span search.
type ScoredSpan struct {
	Start int
	End   int
	Score float32
}

// DecodeAnswerSpans searches for the best answer spans of one item. Start and
// end logits are softmaxed independently; only positions strictly after
// sepIndex are considered (answers may not fall in the question); pairs with
// start > end are discarded; the surviving pairs are scored as
// startProb × endProb and the top k returned sorted descending.
func DecodeAnswerSpans(startLogits, endLogits []float32, sepIndex, topK int) []ScoredSpan {
	startProbs := Softmax(startLogits)
	endProbs := Softmax(endLogits)

	var spans []ScoredSpan
	for start := sepIndex + 1; start < len(startProbs); start++ {
		for end := sepIndex + 1; end < len(endProbs); end++ {
			if start > end {
				continue
			}
			spans = append(spans, ScoredSpan{
				Start: start,
				End:   end,
				Score: startProbs[start] * endProbs[end],
			})
		}
	}

	sort.SliceStable(spans, func(a, b int) bool {
		return spans[a].Score > spans[b].Score
	})
	if topK > 0 && topK < len(spans) {
		spans = spans[:topK]
	}
	return spans
}

// QAOption configures a question answering call.
type QAOption func(*qaConfig)

type qaConfig struct {
	topK int
}

// WithAnswerTopK sets how many answer spans are returned per question.
// The default is 1.
func WithAnswerTopK(k int) QAOption {
	return func(c *qaConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// QuestionAnsweringPipeline extracts answer spans from a context text.
type QuestionAnsweringPipeline struct {
	base
}

// NewQuestionAnsweringPipeline constructs an extractive QA pipeline.
func NewQuestionAnsweringPipeline(task string, c Collaborators) (Pipeline, error) {
	return &QuestionAnsweringPipeline{base: newBase(task, c)}, nil
}

// Answer finds the top-k answer spans for one (question, context) pair.
// Spans always start strictly after the separator token, satisfy
// start <= end, and decode with special tokens stripped.
func (p *QuestionAnsweringPipeline) Answer(ctx context.Context, question, contextText string, opts ...QAOption) ([]Answer, error) {
	cfg := &qaConfig{topK: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	enc, err := p.tokenizer.Encode(ctx, []string{question}, &backends.EncodeOptions{
		Padding:          true,
		Truncation:       true,
		TextPair:         []string{contextText},
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.model.Forward(ctx, &backends.ModelInputs{
		InputIDs:      enc.InputIDs,
		AttentionMask: enc.AttentionMask,
		TokenTypeIDs:  enc.TokenTypeIDs,
	})
	if err != nil {
		return nil, err
	}

	sepID, ok := p.tokenizer.SepTokenID()
	if !ok {
		return nil, &backends.MissingTokenError{Token: "separator", Input: question}
	}
	sepIndex := -1
	for i, id := range enc.InputIDs[0] {
		if id == sepID {
			sepIndex = i
			break
		}
	}
	if sepIndex < 0 {
		return nil, &backends.MissingTokenError{Token: "separator", Input: question}
	}

	spans := DecodeAnswerSpans(out.StartLogits[0], out.EndLogits[0], sepIndex, cfg.topK)

	answers := make([]Answer, len(spans))
	for i, span := range spans {
		text, err := p.tokenizer.Decode(enc.InputIDs[0][span.Start:span.End+1], true)
		if err != nil {
			return nil, err
		}
		answers[i] = Answer{
			Text:  text,
			Score: span.Score,
			Start: span.Start,
			End:   span.End,
		}
	}
	return answers, nil
}

// Best returns the single best answer. This is the flattened topk=1 shape,
// applied unconditionally for QA.
func (p *QuestionAnsweringPipeline) Best(ctx context.Context, question, contextText string) (Answer, error) {
	answers, err := p.Answer(ctx, question, contextText)
	if err != nil {
		return Answer{}, err
	}
	if len(answers) == 0 {
		return Answer{}, &backends.ValidationError{Field: "context", Reason: "no valid answer span found"}
	}
	return answers[0], nil
}
