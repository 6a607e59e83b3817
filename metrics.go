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

import "github.com/prometheus/client_golang/prometheus"

var (
	pipelineCreationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "taskpipe",
			Name:      "pipeline_creation_ops_total",
			Help:      "The total number of pipelines constructed.",
		},
		[]string{"task"},
	)
	pipelineRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "taskpipe",
			Name:      "pipeline_request_ops_total",
			Help:      "The total number of pipeline lookups served by the manager.",
		},
		[]string{"task"},
	)

	modelLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "antfly",
			Subsystem: "taskpipe",
			Name:      "model_load_duration_seconds",
			Help:      "Time taken to load a pipeline's collaborators.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "task"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "taskpipe",
			Name:      "cache_hits_total",
			Help:      "Total number of pipeline cache hits.",
		},
		[]string{"task"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "antfly",
			Subsystem: "taskpipe",
			Name:      "cache_misses_total",
			Help:      "Total number of pipeline cache misses.",
		},
		[]string{"task"},
	)
)

func init() {
	prometheus.MustRegister(pipelineCreationOps)
	prometheus.MustRegister(pipelineRequestOps)
	prometheus.MustRegister(modelLoadDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
}

// RecordPipelineCreation increments the creation counter for a task.
func RecordPipelineCreation(task string) {
	pipelineCreationOps.WithLabelValues(task).Inc()
}

// RecordPipelineRequest increments the request counter for a task.
func RecordPipelineRequest(task string) {
	pipelineRequestOps.WithLabelValues(task).Inc()
}

// RecordModelLoadDuration records how long a pipeline's collaborators took to
// load.
func RecordModelLoadDuration(model, task string, seconds float64) {
	modelLoadDuration.WithLabelValues(model, task).Observe(seconds)
}

// RecordCacheHit increments the cache hit counter for a task.
func RecordCacheHit(task string) {
	cacheHits.WithLabelValues(task).Inc()
}

// RecordCacheMiss increments the cache miss counter for a task.
func RecordCacheMiss(task string) {
	cacheMisses.WithLabelValues(task).Inc()
}
