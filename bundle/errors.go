// Copyright 2024 Google Inc. All rights reserved.
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

package bundle

import "fmt"

// InvalidBundleError reports a structural defect in the input bundle. It is
// always fatal; nothing downstream repairs a broken bundle.
type InvalidBundleError struct {
	msg string
}

func (e *InvalidBundleError) Error() string {
	return "invalid bundle: " + e.msg
}

// InvalidBundlef builds an InvalidBundleError with a formatted message.
func InvalidBundlef(format string, args ...interface{}) error {
	return &InvalidBundleError{msg: fmt.Sprintf(format, args...)}
}

// InvalidCommandError reports an impossible caller-supplied configuration,
// detected before any building starts.
type InvalidCommandError struct {
	msg string
}

func (e *InvalidCommandError) Error() string {
	return "invalid command: " + e.msg
}

// InvalidCommandf builds an InvalidCommandError with a formatted message.
func InvalidCommandf(format string, args ...interface{}) error {
	return &InvalidCommandError{msg: fmt.Sprintf(format, args...)}
}
