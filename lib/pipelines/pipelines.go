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

// Package pipelines implements the task pipelines and their decoding
// algorithms. Every pipeline pairs a Model with a Tokenizer and, for
// multimodal tasks, a Processor; the decode step of each task is a free
// function over (inputs, model outputs, options) so it can be tested in
// isolation.
//
// All decoding is batched internally. Pipelines expose batch methods whose
// result length matches the input length, plus single-input convenience
// methods that unwrap a batch of one. Two shape conventions are deliberate
// and preserved for compatibility: classification only flattens the top-k
// dimension through the separate Top method, while question answering's
// single-input method returns one Answer whenever topk is 1.
package pipelines

import (
	"context"

	"go.uber.org/zap"

	"github.com/antflydb/taskpipe/lib/backends"
)

// Pipeline is the uniform contract every task pipeline implements. Concrete
// pipelines expose typed invocation methods on top of it; use As to recover
// the concrete type from a factory result.
type Pipeline interface {
	// Task returns the task name the pipeline was constructed for.
	Task() string

	// Close releases the held Model's resources. Call at most once; using
	// the pipeline afterwards surfaces the Model's own error, nothing more.
	Close() error
}

// Collaborators bundles the loaded collaborators a pipeline is constructed
// from. A pipeline takes exclusive ownership of all of them.
type Collaborators struct {
	Tokenizer backends.Tokenizer
	Model     backends.Model
	Processor backends.Processor
	Logger    *zap.Logger
}

// base carries the collaborators and the default run step shared by the task
// pipelines.
type base struct {
	task      string
	tokenizer backends.Tokenizer
	model     backends.Model
	processor backends.Processor
	logger    *zap.Logger
}

func newBase(task string, c Collaborators) base {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		task:      task,
		tokenizer: c.Tokenizer,
		model:     c.Model,
		processor: c.Processor,
		logger:    logger,
	}
}

// Task returns the task name the pipeline was constructed for.
func (b *base) Task() string { return b.task }

// Close releases the held Model's resources.
func (b *base) Close() error { return b.model.Close() }

// run is the default encode-and-forward step: tokenize with padding and
// truncation enabled, run the Model, and return both the encoding and the
// raw output. Tasks needing custom encoding (QA, zero-shot, generation,
// multimodal) bypass it.
func (b *base) run(ctx context.Context, texts []string) (*backends.Encoding, *backends.ModelOutput, error) {
	enc, err := b.tokenizer.Encode(ctx, texts, &backends.EncodeOptions{
		Padding:          true,
		Truncation:       true,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, nil, err
	}

	out, err := b.model.Forward(ctx, &backends.ModelInputs{
		InputIDs:      enc.InputIDs,
		AttentionMask: enc.AttentionMask,
		TokenTypeIDs:  enc.TokenTypeIDs,
	})
	if err != nil {
		return nil, nil, err
	}

	return enc, out, nil
}

// As recovers a concrete pipeline type from a Pipeline value.
func As[T Pipeline](p Pipeline) (T, error) {
	typed, ok := p.(T)
	if !ok {
		var zero T
		return zero, &backends.ValidationError{
			Field:  "pipeline",
			Reason: "task does not produce the requested pipeline type",
		}
	}
	return typed, nil
}
