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
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/antflydb/taskpipe/lib/pipelines"
)

// DefaultKeepAlive is how long an idle pipeline stays loaded.
const DefaultKeepAlive = 5 * time.Minute

// ManagerConfig configures the pipeline manager.
type ManagerConfig struct {
	// KeepAlive is how long an unused pipeline stays loaded (0 = forever).
	KeepAlive time.Duration

	// MaxLoaded caps the number of cached pipelines (0 = unlimited).
	// The least recently used pipeline is evicted at capacity.
	MaxLoaded uint64

	// MaxConcurrentLoads bounds how many pipelines load at once
	// (0 = unlimited).
	MaxConcurrentLoads int64
}

// Manager shares pipelines across callers: repeated requests for the same
// (task, model) return the cached instance, idle pipelines unload after the
// keep-alive window, and concurrent requests for an unloaded pipeline
// deduplicate into a single construction.
type Manager struct {
	factory *Factory
	logger  *zap.Logger

	cache *ttlcache.Cache[string, pipelines.Pipeline]

	// Pinned pipelines never evict; stored separately from the cache.
	pinned   map[string]pipelines.Pipeline
	pinnedMu sync.RWMutex

	loads   singleflight.Group
	loadSem *semaphore.Weighted

	keepAlive time.Duration
	maxLoaded uint64
}

// NewManager constructs a Manager over a Factory.
func NewManager(config ManagerConfig, factory *Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	keepAlive := config.KeepAlive
	if keepAlive == 0 {
		keepAlive = ttlcache.NoTTL
	}

	m := &Manager{
		factory:   factory,
		logger:    logger,
		pinned:    make(map[string]pipelines.Pipeline),
		keepAlive: keepAlive,
		maxLoaded: config.MaxLoaded,
	}
	if config.MaxConcurrentLoads > 0 {
		m.loadSem = semaphore.NewWeighted(config.MaxConcurrentLoads)
	}

	cacheOpts := []ttlcache.Option[string, pipelines.Pipeline]{
		ttlcache.WithTTL[string, pipelines.Pipeline](keepAlive),
	}
	if config.MaxLoaded > 0 {
		cacheOpts = append(cacheOpts,
			ttlcache.WithCapacity[string, pipelines.Pipeline](config.MaxLoaded))
	}
	m.cache = ttlcache.New(cacheOpts...)

	m.cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, pipelines.Pipeline]) {
		key := item.Key()
		p := item.Value()

		// A pipeline moved to pinned must not be closed on cache removal.
		m.pinnedMu.RLock()
		isPinned := m.pinned[key] == p
		m.pinnedMu.RUnlock()
		if isPinned {
			return
		}

		reasonStr := "unknown"
		switch reason {
		case ttlcache.EvictionReasonExpired:
			reasonStr = "expired (keep-alive timeout)"
		case ttlcache.EvictionReasonCapacityReached:
			reasonStr = "capacity reached (LRU eviction)"
		case ttlcache.EvictionReasonDeleted:
			reasonStr = "manually deleted"
		}

		logger.Info("unloading pipeline",
			zap.String("task", p.Task()),
			zap.String("reason", reasonStr))

		if err := p.Close(); err != nil {
			logger.Warn("error closing pipeline",
				zap.String("task", p.Task()),
				zap.Error(err))
		}
	})

	go m.cache.Start()

	return m
}

// cacheKey derives a stable key for a (task, model) pair.
func cacheKey(task, model string) string {
	h := xxhash.New()
	h.WriteString(task)
	h.Write([]byte{0})
	h.WriteString(model)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Get returns a pipeline for the task, constructing it on first use. An
// empty model selects the task's default. Hits refresh the keep-alive
// window.
func (m *Manager) Get(ctx context.Context, task, model string, opts ...Option) (pipelines.Pipeline, error) {
	desc, resolved, err := m.factory.registry.Resolve(task)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = desc.DefaultModel
	}
	RecordPipelineRequest(desc.Name)

	key := cacheKey(resolved, model)

	m.pinnedMu.RLock()
	if p, ok := m.pinned[key]; ok {
		m.pinnedMu.RUnlock()
		RecordCacheHit(desc.Name)
		return p, nil
	}
	m.pinnedMu.RUnlock()

	if item := m.cache.Get(key); item != nil {
		RecordCacheHit(desc.Name)
		return item.Value(), nil
	}
	RecordCacheMiss(desc.Name)

	loaded, err, _ := m.loads.Do(key, func() (any, error) {
		// Double-check after winning the flight: a concurrent call may have
		// populated the cache before this one entered.
		if item := m.cache.Get(key); item != nil {
			return item.Value(), nil
		}

		if m.loadSem != nil {
			if err := m.loadSem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
			defer m.loadSem.Release(1)
		}

		p, err := m.factory.Pipeline(ctx, task, append(opts, WithModel(model))...)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, p, ttlcache.DefaultTTL)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return loaded.(pipelines.Pipeline), nil
}

// Pin marks a (task, model) pipeline as never evicted, loading it first when
// needed.
func (m *Manager) Pin(ctx context.Context, task, model string, opts ...Option) error {
	p, err := m.Get(ctx, task, model, opts...)
	if err != nil {
		return fmt.Errorf("pin pipeline %s: %w", task, err)
	}

	desc, resolved, err := m.factory.registry.Resolve(task)
	if err != nil {
		return err
	}
	if model == "" {
		model = desc.DefaultModel
	}
	key := cacheKey(resolved, model)

	m.pinnedMu.Lock()
	m.pinned[key] = p
	m.pinnedMu.Unlock()

	// The eviction callback sees the pinned entry and skips the close.
	m.cache.Delete(key)

	m.logger.Info("pinned pipeline",
		zap.String("task", resolved),
		zap.String("model", model))
	return nil
}

// Unload evicts a cached pipeline, closing it. Pinned pipelines are not
// affected.
func (m *Manager) Unload(task, model string) {
	desc, resolved, err := m.factory.registry.Resolve(task)
	if err != nil {
		return
	}
	if model == "" {
		model = desc.DefaultModel
	}
	key := cacheKey(resolved, model)

	m.pinnedMu.RLock()
	_, isPinned := m.pinned[key]
	m.pinnedMu.RUnlock()
	if isPinned {
		return
	}

	m.cache.Delete(key)
}

// Loaded returns how many pipelines are currently held, cached plus pinned.
func (m *Manager) Loaded() int {
	m.pinnedMu.RLock()
	pinned := len(m.pinned)
	m.pinnedMu.RUnlock()
	return m.cache.Len() + pinned
}

// Close stops the cache and closes every held pipeline, including pinned
// ones.
func (m *Manager) Close() error {
	m.cache.Stop()
	m.cache.DeleteAll()

	m.pinnedMu.Lock()
	defer m.pinnedMu.Unlock()
	for key, p := range m.pinned {
		if err := p.Close(); err != nil {
			m.logger.Warn("error closing pinned pipeline",
				zap.String("task", p.Task()),
				zap.Error(err))
		}
		delete(m.pinned, key)
	}
	return nil
}
