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

package tokenizers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antflydb/taskpipe/lib/backends"
)

func TestBPERoundTrip(t *testing.T) {
	tk, err := NewBPETokenizer("")
	require.NoError(t, err)

	enc, err := tk.Encode(context.Background(), []string{"hello world"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, enc.InputIDs[0])

	text, err := tk.Decode(enc.InputIDs[0], true)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestBPEUnknownEncoding(t *testing.T) {
	_, err := NewBPETokenizer("z9000_base")
	require.Error(t, err)
}

func TestBPEPaddingSides(t *testing.T) {
	tk, err := NewBPETokenizer("")
	require.NoError(t, err)

	enc, err := tk.Encode(context.Background(), []string{"a much longer piece of text", "hi"}, &backends.EncodeOptions{
		Padding: true,
	})
	require.NoError(t, err)
	require.Len(t, enc.InputIDs, 2)
	assert.Len(t, enc.InputIDs[1], len(enc.InputIDs[0]))

	// Right padding puts the real tokens first.
	assert.Equal(t, int32(1), enc.AttentionMask[1][0])
	assert.Equal(t, int32(0), enc.AttentionMask[1][len(enc.AttentionMask[1])-1])

	tk.SetPaddingSide(backends.PadLeft)
	enc, err = tk.Encode(context.Background(), []string{"a much longer piece of text", "hi"}, &backends.EncodeOptions{
		Padding: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), enc.AttentionMask[1][0])
	assert.Equal(t, int32(1), enc.AttentionMask[1][len(enc.AttentionMask[1])-1])
}

func TestBPEHasNoSpecialTokens(t *testing.T) {
	tk, err := NewBPETokenizer("")
	require.NoError(t, err)

	_, ok := tk.SepTokenID()
	assert.False(t, ok)
	_, ok = tk.MaskTokenID()
	assert.False(t, ok)
	assert.Equal(t, int32(0), tk.PadTokenID())
}
