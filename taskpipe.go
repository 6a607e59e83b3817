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

// Package taskpipe orchestrates inference pipelines: a Registry maps task
// names (with aliases and language-pair suffixes) to descriptors, a Factory
// loads the collaborators each task needs and constructs its pipeline, and a
// Manager shares loaded pipelines across callers with keep-alive unloading.
//
// Tokenization, tensor execution and weight loading live behind the
// interfaces in lib/backends; the task pipelines and their decoding
// algorithms live in lib/pipelines.
//
// The short form for one-off use:
//
//	registry := taskpipe.NewRegistry()
//	factory := taskpipe.NewFactory(registry, loaders, logger)
//	p, err := factory.Pipeline(ctx, "sentiment-analysis")
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	tc, err := pipelines.As[*pipelines.TextClassificationPipeline](p)
//	if err != nil {
//		return err
//	}
//	result, err := tc.Top(ctx, "I love this library!")
package taskpipe
