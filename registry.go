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
	"sort"
	"strings"

	"github.com/antflydb/taskpipe/lib/pipelines"
)

// Category groups tasks by the modality of their inputs.
type Category string

const (
	CategoryText       Category = "text"
	CategoryAudio      Category = "audio"
	CategoryImage      Category = "image"
	CategoryMultimodal Category = "multimodal"
)

// TaskDescriptor declares what a task needs and how to build its pipeline.
type TaskDescriptor struct {
	// Name is the canonical task name and registry key.
	Name string

	// Category is the task's input modality.
	Category Category

	// NeedsTokenizer and NeedsProcessor select which collaborators the
	// factory loads. A Model is always required.
	NeedsTokenizer bool
	NeedsProcessor bool

	// DefaultModel is used when the caller names no model.
	DefaultModel string

	// New constructs the task's pipeline from loaded collaborators.
	New func(task string, c pipelines.Collaborators) (pipelines.Pipeline, error)
}

// Registry maps task names to descriptors. It is built once and never
// mutated; share a single Registry across factories and managers freely.
type Registry struct {
	tasks   map[string]TaskDescriptor
	aliases map[string]string
}

// NewRegistry builds the registry of supported tasks with their aliases and
// default models.
func NewRegistry() *Registry {
	tasks := []TaskDescriptor{
		{
			Name:           "text-classification",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/distilbert-base-uncased-finetuned-sst-2-english",
			New:            pipelines.NewTextClassificationPipeline,
		},
		{
			Name:           "token-classification",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/bert-base-multilingual-cased-ner-hrl",
			New:            pipelines.NewTokenClassificationPipeline,
		},
		{
			Name:           "question-answering",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/distilbert-base-cased-distilled-squad",
			New:            pipelines.NewQuestionAnsweringPipeline,
		},
		{
			Name:           "fill-mask",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/bert-base-uncased",
			New:            pipelines.NewFillMaskPipeline,
		},
		{
			Name:           "summarization",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/distilbart-cnn-6-6",
			New:            pipelines.NewSummarizationPipeline,
		},
		{
			Name:           "translation",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/t5-small",
			New:            pipelines.NewTranslationPipeline,
		},
		{
			Name:           "text2text-generation",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/flan-t5-small",
			New:            pipelines.NewText2TextPipeline,
		},
		{
			Name:           "text-generation",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/gpt2",
			New:            pipelines.NewTextGenerationPipeline,
		},
		{
			Name:           "zero-shot-classification",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/distilbert-base-uncased-mnli",
			New:            pipelines.NewZeroShotClassificationPipeline,
		},
		{
			Name:           "feature-extraction",
			Category:       CategoryText,
			NeedsTokenizer: true,
			DefaultModel:   "Xenova/all-MiniLM-L6-v2",
			New:            pipelines.NewFeatureExtractionPipeline,
		},
		{
			Name:           "automatic-speech-recognition",
			Category:       CategoryAudio,
			NeedsTokenizer: true,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/whisper-tiny.en",
			New:            pipelines.NewSpeechRecognitionPipeline,
		},
		{
			Name:           "image-to-text",
			Category:       CategoryMultimodal,
			NeedsTokenizer: true,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/vit-gpt2-image-captioning",
			New:            pipelines.NewImageToTextPipeline,
		},
		{
			Name:           "image-classification",
			Category:       CategoryImage,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/vit-base-patch16-224",
			New:            pipelines.NewImageClassificationPipeline,
		},
		{
			Name:           "image-segmentation",
			Category:       CategoryImage,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/detr-resnet-50-panoptic",
			New:            pipelines.NewImageSegmentationPipeline,
		},
		{
			Name:           "zero-shot-image-classification",
			Category:       CategoryMultimodal,
			NeedsTokenizer: true,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/clip-vit-base-patch32",
			New:            pipelines.NewZeroShotImageClassificationPipeline,
		},
		{
			Name:           "object-detection",
			Category:       CategoryImage,
			NeedsProcessor: true,
			DefaultModel:   "Xenova/detr-resnet-50",
			New:            pipelines.NewObjectDetectionPipeline,
		},
	}

	table := make(map[string]TaskDescriptor, len(tasks))
	for _, task := range tasks {
		table[task.Name] = task
	}

	return &Registry{
		tasks: table,
		aliases: map[string]string{
			"sentiment-analysis": "text-classification",
			"ner":                "token-classification",
			"asr":                "automatic-speech-recognition",
			"embeddings":         "feature-extraction",
		},
	}
}

// Resolve finds the descriptor for a task name. Aliases resolve first by
// exact match; then the name's first underscore-separated segment is the
// registry key, so "translation_en_to_de" resolves to "translation". The
// returned name is the full post-alias task name, which pipelines keep (a
// translation pipeline still reports its language pair).
func (r *Registry) Resolve(name string) (TaskDescriptor, string, error) {
	resolved := name
	if canonical, ok := r.aliases[name]; ok {
		resolved = canonical
	}

	key := resolved
	if idx := strings.Index(resolved, "_"); idx >= 0 {
		key = resolved[:idx]
	}

	if desc, ok := r.tasks[key]; ok {
		return desc, resolved, nil
	}
	return TaskDescriptor{}, "", &UnsupportedTaskError{Task: name, Supported: r.Tasks()}
}

// Tasks returns the canonical task names, sorted.
func (r *Registry) Tasks() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns the alias table as alias → canonical name pairs.
func (r *Registry) Aliases() map[string]string {
	aliases := make(map[string]string, len(r.aliases))
	for alias, canonical := range r.aliases {
		aliases[alias] = canonical
	}
	return aliases
}

// Describe returns the descriptor for a canonical task name.
func (r *Registry) Describe(name string) (TaskDescriptor, bool) {
	desc, ok := r.tasks[name]
	return desc, ok
}
