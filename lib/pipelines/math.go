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
	"math"
	"sort"
)

// Softmax converts logits to probabilities. The maximum logit is subtracted
// before exponentiating so large logits do not overflow.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// Argmax returns the index of the maximum value. Ties resolve to the first
// occurrence.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// TopKIndices returns the indices of the k highest values, sorted descending
// by value. Ties keep their first-seen order (stable sort). k larger than
// len(values) returns all indices.
func TopKIndices(values []float32, k int) []int {
	indices := make([]int, len(values))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return values[indices[a]] > values[indices[b]]
	})
	if k > 0 && k < len(indices) {
		indices = indices[:k]
	}
	return indices
}

// MeanPool reduces hidden states [batch, seq, hidden] to one vector per batch
// item by attention-weighted averaging: masked positions contribute zero to
// the sum and are excluded from the count. An all-zero mask yields NaN for
// that item rather than panicking.
func MeanPool(hidden [][][]float32, mask [][]int32) [][]float32 {
	pooled := make([][]float32, len(hidden))
	for i := range hidden {
		if len(hidden[i]) == 0 {
			pooled[i] = nil
			continue
		}
		hiddenSize := len(hidden[i][0])
		vec := make([]float32, hiddenSize)
		var count float32
		for j := range hidden[i] {
			if mask[i][j] == 0 {
				continue
			}
			for h := 0; h < hiddenSize; h++ {
				vec[h] += hidden[i][j][h]
			}
			count++
		}
		for h := range vec {
			vec[h] /= count
		}
		pooled[i] = vec
	}
	return pooled
}

// NormalizeL2 scales a vector to unit length in place and returns it.
// The zero vector is left unchanged.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// DotProduct returns the dot product of two equal-length vectors. For
// unit-normalized vectors this equals their cosine similarity, skipping the
// magnitude computation.
func DotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity returns the cosine of the angle between two equal-length
// vectors. Callers that know both vectors are unit-normalized can use
// DotProduct directly.
func CosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
