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
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/antflydb/taskpipe/lib/backends"
	"github.com/antflydb/taskpipe/lib/pipelines"
)

// ProgressEvent reports factory progress to an optional callback.
type ProgressEvent struct {
	// Status is "loading" when collaborator loads begin and "ready" once
	// the pipeline is constructed.
	Status string `json:"status"`

	// Task and Model identify the pipeline being built.
	Task  string `json:"task"`
	Model string `json:"model"`
}

// Option configures pipeline construction.
type Option func(*factoryConfig)

type factoryConfig struct {
	model    string
	load     backends.LoadOptions
	logger   *zap.Logger
	progress func(ProgressEvent)
}

// WithModel selects the model id. Without it the task's default model is
// used.
func WithModel(id string) Option {
	return func(c *factoryConfig) {
		c.model = id
	}
}

// WithQuantized selects quantized weight files where available.
func WithQuantized() Option {
	return func(c *factoryConfig) {
		c.load.Quantized = true
	}
}

// WithCacheDir overrides the loaders' download cache location.
func WithCacheDir(dir string) Option {
	return func(c *factoryConfig) {
		c.load.CacheDir = dir
	}
}

// WithLocalFilesOnly disables network access during loading.
func WithLocalFilesOnly() Option {
	return func(c *factoryConfig) {
		c.load.LocalFilesOnly = true
	}
}

// WithRevision selects a specific model revision.
func WithRevision(rev string) Option {
	return func(c *factoryConfig) {
		c.load.Revision = rev
	}
}

// WithLogger sets the logger used by the factory and handed to the pipeline.
func WithLogger(logger *zap.Logger) Option {
	return func(c *factoryConfig) {
		c.logger = logger
	}
}

// WithProgress registers a callback receiving loading and ready events.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(c *factoryConfig) {
		c.progress = fn
	}
}

// Factory builds pipelines by resolving tasks against a Registry and loading
// collaborators through a set of Loaders.
type Factory struct {
	registry *Registry
	loaders  backends.Loaders
	logger   *zap.Logger
}

// NewFactory constructs a Factory. A nil logger defaults to a no-op logger.
func NewFactory(registry *Registry, loaders backends.Loaders, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		registry: registry,
		loaders:  loaders,
		logger:   logger,
	}
}

// Pipeline resolves the task, loads the collaborators it needs concurrently,
// and constructs the pipeline. The first loader failure cancels the remaining
// loads and propagates unchanged. Without WithModel the descriptor's default
// model is used and a notice logged.
func (f *Factory) Pipeline(ctx context.Context, task string, opts ...Option) (pipelines.Pipeline, error) {
	cfg := &factoryConfig{logger: f.logger}
	for _, opt := range opts {
		opt(cfg)
	}

	desc, resolved, err := f.registry.Resolve(task)
	if err != nil {
		return nil, err
	}

	model := cfg.model
	if model == "" {
		model = desc.DefaultModel
		cfg.logger.Info("no model specified, using task default",
			zap.String("task", resolved),
			zap.String("model", model))
	}

	if cfg.progress != nil {
		cfg.progress(ProgressEvent{Status: "loading", Task: resolved, Model: model})
	}
	start := time.Now()

	var c pipelines.Collaborators
	c.Logger = cfg.logger

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loaded, err := f.loaders.Model.LoadModel(gctx, model, &cfg.load)
		if err != nil {
			return err
		}
		c.Model = loaded
		return nil
	})
	if desc.NeedsTokenizer {
		g.Go(func() error {
			loaded, err := f.loaders.Tokenizer.LoadTokenizer(gctx, model, &cfg.load)
			if err != nil {
				return err
			}
			c.Tokenizer = loaded
			return nil
		})
	}
	if desc.NeedsProcessor {
		g.Go(func() error {
			loaded, err := f.loaders.Processor.LoadProcessor(gctx, model, &cfg.load)
			if err != nil {
				return err
			}
			c.Processor = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p, err := desc.New(resolved, c)
	if err != nil {
		return nil, err
	}

	RecordPipelineCreation(desc.Name)
	RecordModelLoadDuration(model, desc.Name, time.Since(start).Seconds())
	cfg.logger.Info("pipeline ready",
		zap.String("task", resolved),
		zap.String("model", model),
		zap.Duration("load_time", time.Since(start)))

	if cfg.progress != nil {
		cfg.progress(ProgressEvent{Status: "ready", Task: resolved, Model: model})
	}
	return p, nil
}
