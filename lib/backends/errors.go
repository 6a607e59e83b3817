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

package backends

import "fmt"

// ValidationError reports a bad option combination, such as a stride that is
// not smaller than the chunk length or a batch size a task does not support.
type ValidationError struct {
	// Field names the offending option.
	Field string

	// Reason says which validation failed.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MissingTokenError reports that an expected special token was absent from an
// encoded sequence, e.g. no mask token in a fill-mask input.
type MissingTokenError struct {
	// Token names the missing token.
	Token string

	// Input is the offending input text.
	Input string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("no %s token found in input %q", e.Token, e.Input)
}

// UnsupportedSubtaskError reports a segmentation subtask the processor cannot
// post-process.
type UnsupportedSubtaskError struct {
	// Subtask is the requested subtask name.
	Subtask string
}

func (e *UnsupportedSubtaskError) Error() string {
	return fmt.Sprintf("segmentation subtask %q is not supported", e.Subtask)
}
