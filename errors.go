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
	"fmt"
	"strings"
)

// UnsupportedTaskError reports a task name the registry does not know,
// listing every supported task so callers can correct the request.
type UnsupportedTaskError struct {
	// Task is the name that failed to resolve.
	Task string

	// Supported lists the registered task names, sorted.
	Supported []string
}

func (e *UnsupportedTaskError) Error() string {
	return fmt.Sprintf("unsupported task %q, must be one of: %s",
		e.Task, strings.Join(e.Supported, ", "))
}
