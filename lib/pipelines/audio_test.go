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
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/taskpipe/lib/backends"
)

// buildWAV assembles a PCM WAV file with the given 16-bit samples, interleaved
// when channels > 1.
func buildWAV(samples []int16, channels int, rate uint32) []byte {
	var pcm bytes.Buffer
	binary.Write(&pcm, binary.LittleEndian, samples)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcm.Len()))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, rate)
	binary.Write(&buf, binary.LittleEndian, rate*uint32(channels)*2) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))     // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcm.Len()))
	buf.Write(pcm.Bytes())

	return buf.Bytes()
}

func TestDecodeWAVMono16Bit(t *testing.T) {
	data := buildWAV([]int16{0, 16384, -16384, 32767}, 1, 100)

	samples, err := DecodeWAV(data, 100)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.InDelta(t, 0.0, float64(samples[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(samples[1]), 1e-6)
	assert.InDelta(t, -0.5, float64(samples[2]), 1e-6)
	assert.InDelta(t, 1.0, float64(samples[3]), 1e-3)
}

func TestDecodeWAVStereoAveragesChannels(t *testing.T) {
	// Interleaved L/R pairs: (16384, 0) and (-16384, -16384).
	data := buildWAV([]int16{16384, 0, -16384, -16384}, 2, 100)

	samples, err := DecodeWAV(data, 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.InDelta(t, 0.25, float64(samples[0]), 1e-6)
	assert.InDelta(t, -0.5, float64(samples[1]), 1e-6)
}

func TestDecodeWAVResamples(t *testing.T) {
	data := buildWAV(make([]int16, 8), 1, 200)

	samples, err := DecodeWAV(data, 100)
	require.NoError(t, err)
	assert.Len(t, samples, 4)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV([]byte("definitely not audio"), 16000)
	require.Error(t, err)
}

func TestAudioProcessorProcess(t *testing.T) {
	ap := NewAudioProcessor(&AudioConfig{
		SamplingRate: 80,
		ChunkLength:  1,
		NFFT:         16,
		HopLength:    8,
		NMels:        4,
		PaddingValue: 0,
	})

	// A short sine burst, well under the chunk length.
	samples := make([]float32, 40)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 4))
	}

	inputs, err := ap.Process(context.Background(), &backends.MediaBatch{
		Audio: [][]float32{samples, samples},
	})
	require.NoError(t, err)

	frames := 80 / 8
	assert.Equal(t, 2, inputs.AudioBatch)
	assert.Equal(t, frames, inputs.AudioFrames)
	assert.Equal(t, 4, inputs.AudioMels)
	require.Len(t, inputs.InputFeatures, 2*frames*4)

	for _, v := range inputs.InputFeatures {
		assert.False(t, math.IsNaN(float64(v)))
		assert.False(t, math.IsInf(float64(v), 0))
	}
}

func TestAudioProcessorRejectsEmptyBatch(t *testing.T) {
	ap := NewAudioProcessor(DefaultAudioConfig())

	_, err := ap.Process(context.Background(), &backends.MediaBatch{})
	require.Error(t, err)

	var verr *backends.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAudioProcessorFeatureExtractorConfig(t *testing.T) {
	ap := NewAudioProcessor(DefaultAudioConfig())

	cfg := ap.FeatureExtractorConfig()
	assert.Equal(t, 16000, cfg.SamplingRate)
	assert.Equal(t, 30, cfg.ChunkLength)
}
