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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/taskpipe/lib/pipelines"
)

func TestFactoryBuildsPipeline(t *testing.T) {
	loaders := &stubLoaders{}
	f := NewFactory(NewRegistry(), loaders.loaders(), nil)

	p, err := f.Pipeline(context.Background(), "text-classification", WithModel("acme/sentiment"))
	require.NoError(t, err)
	assert.Equal(t, "text-classification", p.Task())

	tc, err := pipelines.As[*pipelines.TextClassificationPipeline](p)
	require.NoError(t, err)

	top, err := tc.Top(context.Background(), "works")
	require.NoError(t, err)
	assert.Equal(t, "POSITIVE", top.Label)

	assert.Equal(t, []string{"acme/sentiment"}, loaders.modelIDs)
}

func TestFactoryDefaultModel(t *testing.T) {
	loaders := &stubLoaders{}
	f := NewFactory(NewRegistry(), loaders.loaders(), nil)

	_, err := f.Pipeline(context.Background(), "sentiment-analysis")
	require.NoError(t, err)

	require.Len(t, loaders.modelIDs, 1)
	assert.Equal(t, "Xenova/distilbert-base-uncased-finetuned-sst-2-english", loaders.modelIDs[0])
}

func TestFactoryLoadsOnlyNeededCollaborators(t *testing.T) {
	t.Run("text task skips processor", func(t *testing.T) {
		loaders := &stubLoaders{}
		f := NewFactory(NewRegistry(), loaders.loaders(), nil)

		_, err := f.Pipeline(context.Background(), "text-classification")
		require.NoError(t, err)

		assert.Equal(t, 1, loaders.modelLoads)
		assert.Equal(t, 1, loaders.tokenizerLoads)
		assert.Equal(t, 0, loaders.processorLoads)
	})

	t.Run("image task skips tokenizer", func(t *testing.T) {
		loaders := &stubLoaders{}
		f := NewFactory(NewRegistry(), loaders.loaders(), nil)

		_, err := f.Pipeline(context.Background(), "image-classification")
		require.NoError(t, err)

		assert.Equal(t, 1, loaders.modelLoads)
		assert.Equal(t, 0, loaders.tokenizerLoads)
		assert.Equal(t, 1, loaders.processorLoads)
	})

	t.Run("speech task loads all three", func(t *testing.T) {
		loaders := &stubLoaders{}
		f := NewFactory(NewRegistry(), loaders.loaders(), nil)

		_, err := f.Pipeline(context.Background(), "asr")
		require.NoError(t, err)

		assert.Equal(t, 1, loaders.modelLoads)
		assert.Equal(t, 1, loaders.tokenizerLoads)
		assert.Equal(t, 1, loaders.processorLoads)
	})
}

func TestFactoryLoaderErrorPropagatesUnwrapped(t *testing.T) {
	sentinel := errors.New("weights download failed")
	loaders := &stubLoaders{modelErr: sentinel}
	f := NewFactory(NewRegistry(), loaders.loaders(), nil)

	_, err := f.Pipeline(context.Background(), "text-classification")
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestFactoryUnknownTask(t *testing.T) {
	f := NewFactory(NewRegistry(), (&stubLoaders{}).loaders(), nil)

	_, err := f.Pipeline(context.Background(), "mind-reading")
	require.Error(t, err)

	var uerr *UnsupportedTaskError
	assert.ErrorAs(t, err, &uerr)
}

func TestFactoryProgressEvents(t *testing.T) {
	loaders := &stubLoaders{}
	f := NewFactory(NewRegistry(), loaders.loaders(), nil)

	var events []ProgressEvent
	_, err := f.Pipeline(context.Background(), "text-classification",
		WithModel("acme/sentiment"),
		WithProgress(func(e ProgressEvent) {
			events = append(events, e)
		}))
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "loading", events[0].Status)
	assert.Equal(t, "ready", events[1].Status)
	assert.Equal(t, "text-classification", events[0].Task)
	assert.Equal(t, "acme/sentiment", events[0].Model)
}
