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
	"fmt"
	"io"
	"math"
	"math/cmplx"

	"github.com/antflydb/taskpipe/lib/backends"
)

// AudioConfig holds the feature extraction parameters of an AudioProcessor.
type AudioConfig struct {
	// SamplingRate in Hz that the model expects.
	SamplingRate int `json:"sampling_rate"`

	// ChunkLength is the model's native audio context in seconds.
	ChunkLength int `json:"chunk_length"`

	// NFFT is the FFT window size.
	NFFT int `json:"n_fft"`

	// HopLength is the STFT hop in samples.
	HopLength int `json:"hop_length"`

	// NMels is the number of mel bands.
	NMels int `json:"feature_size"`

	// PaddingValue fills short signals up to the chunk length.
	PaddingValue float32 `json:"padding_value"`
}

// DefaultAudioConfig returns Whisper-style extraction parameters.
func DefaultAudioConfig() *AudioConfig {
	return &AudioConfig{
		SamplingRate: 16000,
		ChunkLength:  30,
		NFFT:         400,
		HopLength:    160,
		NMels:        80,
	}
}

// AudioProcessor converts mono float32 samples into log-mel spectrogram
// features for speech encoder-decoder models. It implements
// backends.Processor.
type AudioProcessor struct {
	config *AudioConfig

	melFilters [][]float32
	hannWindow []float32
}

// NewAudioProcessor constructs an AudioProcessor. A nil config uses
// DefaultAudioConfig.
func NewAudioProcessor(config *AudioConfig) *AudioProcessor {
	if config == nil {
		config = DefaultAudioConfig()
	}
	return &AudioProcessor{
		config:     config,
		melFilters: melFilterBank(config.NMels, config.NFFT, config.SamplingRate),
		hannWindow: hannWindow(config.NFFT),
	}
}

// FeatureExtractorConfig returns the processor's extraction parameters.
func (ap *AudioProcessor) FeatureExtractorConfig() *backends.FeatureExtractorConfig {
	return &backends.FeatureExtractorConfig{
		SamplingRate: ap.config.SamplingRate,
		ChunkLength:  ap.config.ChunkLength,
	}
}

// Process converts a batch of sample buffers into input features
// [batch, frames, mels] flattened. All items produce the same frame count
// because short signals pad and long signals truncate to the chunk length.
func (ap *AudioProcessor) Process(ctx context.Context, batch *backends.MediaBatch) (*backends.ModelInputs, error) {
	if len(batch.Audio) == 0 {
		return nil, &backends.ValidationError{Field: "audio", Reason: "batch is empty"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frames := ap.config.ChunkLength * ap.config.SamplingRate / ap.config.HopLength
	mels := ap.config.NMels

	features := make([]float32, len(batch.Audio)*frames*mels)
	for i, samples := range batch.Audio {
		spec := ap.logMelSpectrogram(samples)
		copy(features[i*frames*mels:], spec)
	}

	return &backends.ModelInputs{
		InputFeatures: features,
		AudioBatch:    len(batch.Audio),
		AudioFrames:   frames,
		AudioMels:     mels,
	}, nil
}

// DecodeWAV parses PCM WAV bytes into mono float32 samples resampled to the
// target rate. 8, 16, 24 and 32-bit PCM are supported; multi-channel signals
// average to mono.
func DecodeWAV(data []byte, targetRate int) ([]float32, error) {
	reader := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(reader, magic[:]); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(magic[:]) != "RIFF" {
		return nil, fmt.Errorf("not a RIFF file")
	}

	var fileSize uint32
	if err := binary.Read(reader, binary.LittleEndian, &fileSize); err != nil {
		return nil, fmt.Errorf("reading file size: %w", err)
	}

	if _, err := io.ReadFull(reader, magic[:]); err != nil {
		return nil, fmt.Errorf("reading WAVE header: %w", err)
	}
	if string(magic[:]) != "WAVE" {
		return nil, fmt.Errorf("not a WAVE file")
	}

	var format, channels, bitsPerSample uint16
	var rate uint32
	var pcm []byte

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(reader, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("reading chunk id: %w", err)
		}
		var chunkSize uint32
		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("reading chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var byteRate uint32
			var blockAlign uint16
			for _, field := range []any{&format, &channels, &rate, &byteRate, &blockAlign, &bitsPerSample} {
				if err := binary.Read(reader, binary.LittleEndian, field); err != nil {
					return nil, fmt.Errorf("reading format chunk: %w", err)
				}
			}
			if extra := int64(chunkSize) - 16; extra > 0 {
				if _, err := reader.Seek(extra, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("skipping format extension: %w", err)
				}
			}
		case "data":
			pcm = make([]byte, chunkSize)
			if _, err := io.ReadFull(reader, pcm); err != nil {
				return nil, fmt.Errorf("reading audio data: %w", err)
			}
		default:
			if _, err := reader.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skipping chunk %q: %w", chunkID, err)
			}
		}
	}

	if pcm == nil {
		return nil, fmt.Errorf("no audio data found")
	}
	if format != 1 {
		return nil, fmt.Errorf("unsupported audio format %d (only PCM supported)", format)
	}

	samples, err := pcmToSamples(pcm, int(bitsPerSample), int(channels))
	if err != nil {
		return nil, err
	}
	if int(rate) != targetRate {
		samples = resampleLinear(samples, int(rate), targetRate)
	}
	return samples, nil
}

// pcmToSamples converts raw PCM to float32 in [-1, 1], averaging channels.
func pcmToSamples(data []byte, bitsPerSample, channels int) ([]float32, error) {
	bytesPerSample := bitsPerSample / 8
	count := len(data) / (bytesPerSample * channels)
	samples := make([]float32, count)

	reader := bytes.NewReader(data)
	for i := 0; i < count; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			var sample float64
			switch bitsPerSample {
			case 8:
				var s uint8
				binary.Read(reader, binary.LittleEndian, &s)
				// 8-bit WAV is unsigned, centered at 128.
				sample = (float64(s) - 128) / 128.0
			case 16:
				var s int16
				binary.Read(reader, binary.LittleEndian, &s)
				sample = float64(s) / 32768.0
			case 24:
				var buf [3]byte
				reader.Read(buf[:])
				s := int32(buf[0]) | int32(buf[1])<<8 | int32(buf[2])<<16
				if s&0x800000 != 0 {
					s |= -0x1000000
				}
				sample = float64(s) / 8388608.0
			case 32:
				var s int32
				binary.Read(reader, binary.LittleEndian, &s)
				sample = float64(s) / 2147483648.0
			default:
				return nil, fmt.Errorf("unsupported bits per sample: %d", bitsPerSample)
			}
			sum += sample
		}
		samples[i] = float32(sum / float64(channels))
	}
	return samples, nil
}

// resampleLinear resamples by linear interpolation.
func resampleLinear(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	out := make([]float32, int(float64(len(samples))/ratio))
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else if idx < len(samples) {
			out[i] = samples[idx]
		}
	}
	return out
}

// logMelSpectrogram computes the flattened [frames, mels] log-mel features of
// one signal, padded or truncated to the chunk length.
func (ap *AudioProcessor) logMelSpectrogram(samples []float32) []float32 {
	nFFT := ap.config.NFFT
	hop := ap.config.HopLength
	mels := ap.config.NMels

	target := ap.config.ChunkLength * ap.config.SamplingRate
	if len(samples) < target {
		padded := make([]float32, target)
		copy(padded, samples)
		for i := len(samples); i < target; i++ {
			padded[i] = ap.config.PaddingValue
		}
		samples = padded
	} else if len(samples) > target {
		samples = samples[:target]
	}

	// Center-padded STFT: nFFT/2 on each side gives target/hop frames.
	pad := nFFT / 2
	centered := make([]float32, len(samples)+2*pad)
	for i := 0; i < pad; i++ {
		centered[i] = ap.config.PaddingValue
	}
	copy(centered[pad:], samples)
	for i := pad + len(samples); i < len(centered); i++ {
		centered[i] = ap.config.PaddingValue
	}

	frames := target / hop
	if frames < 1 {
		frames = 1
	}
	bins := nFFT/2 + 1

	result := make([]float32, frames*mels)
	magnitudes := make([]float32, bins)
	windowed := make([]float32, nFFT)

	for frame := 0; frame < frames; frame++ {
		start := frame * hop
		for i := 0; i < nFFT; i++ {
			if start+i < len(centered) {
				windowed[i] = centered[start+i] * ap.hannWindow[i]
			} else {
				windowed[i] = 0
			}
		}

		spectrum := fft(windowed)
		for i := 0; i < bins; i++ {
			magnitudes[i] = float32(cmplx.Abs(spectrum[i]))
		}

		for mel := 0; mel < mels; mel++ {
			var sum float32
			filter := ap.melFilters[mel]
			for bin := 0; bin < bins && bin < len(filter); bin++ {
				sum += magnitudes[bin] * filter[bin]
			}
			if sum < 1e-10 {
				sum = 1e-10
			}
			result[frame*mels+mel] = float32(math.Log(float64(sum)))
		}
	}

	return result
}

// melFilterBank builds triangular mel filters over the FFT bins.
func melFilterBank(mels, nFFT, rate int) [][]float32 {
	bins := nFFT/2 + 1

	freqToMel := func(f float64) float64 {
		return 2595.0 * math.Log10(1.0+f/700.0)
	}
	melToFreq := func(m float64) float64 {
		return 700.0 * (math.Pow(10.0, m/2595.0) - 1.0)
	}

	lowMel := freqToMel(0)
	highMel := freqToMel(float64(rate) / 2.0)

	binIndices := make([]int, mels+2)
	for i := range binIndices {
		mel := lowMel + float64(i)*(highMel-lowMel)/float64(mels+1)
		freq := melToFreq(mel)
		idx := int(math.Floor((float64(nFFT)+1)*freq/float64(rate) + 0.5))
		if idx >= bins {
			idx = bins - 1
		}
		binIndices[i] = idx
	}

	filters := make([][]float32, mels)
	for mel := 0; mel < mels; mel++ {
		filters[mel] = make([]float32, bins)
		start, center, end := binIndices[mel], binIndices[mel+1], binIndices[mel+2]

		for bin := start; bin < center; bin++ {
			if center != start {
				filters[mel][bin] = float32(bin-start) / float32(center-start)
			}
		}
		for bin := center; bin <= end; bin++ {
			if end != center {
				filters[mel][bin] = float32(end-bin) / float32(end-center)
			}
		}
	}
	return filters
}

func hannWindow(n int) []float32 {
	window := make([]float32, n)
	for i := range window {
		window[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1))))
	}
	return window
}

// fft computes an FFT via iterative Cooley-Tukey, zero-padding the input to
// the next power of two.
func fft(input []float32) []complex128 {
	n := len(input)
	size := 1
	for size < n {
		size *= 2
	}

	data := make([]complex128, size)
	for i := 0; i < n; i++ {
		data[i] = complex(float64(input[i]), 0)
	}

	// Bit-reversal permutation.
	j := 0
	for i := 0; i < size-1; i++ {
		if i < j {
			data[i], data[j] = data[j], data[i]
		}
		k := size / 2
		for k <= j {
			j -= k
			k /= 2
		}
		j += k
	}

	for span := 2; span <= size; span *= 2 {
		half := span / 2
		step := size / span
		for i := 0; i < size; i += span {
			for j := 0; j < half; j++ {
				angle := -2 * math.Pi * float64(j*step) / float64(size)
				w := complex(math.Cos(angle), math.Sin(angle))
				t := w * data[i+j+half]
				data[i+j+half] = data[i+j] - t
				data[i+j] = data[i+j] + t
			}
		}
	}

	return data
}
