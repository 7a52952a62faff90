// Copyright 2024 The Ingress-bench Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package health

import "fmt"

// Check is the outcome of one health check. Advisory checks report
// Required=false: their failure warns but never fails a validation run.
type Check struct {
	Name     string `json:"name" yaml:"name"`
	Passed   bool   `json:"passed" yaml:"passed"`
	Required bool   `json:"required" yaml:"required"`
	Detail   string `json:"detail" yaml:"detail"`
}

// Result is the ordered outcome of a validation run, built fresh each time
type Result struct {
	Checks []Check `json:"checks" yaml:"checks"`
}

// FirstRequiredFailure returns the first failing required check, or nil
func (r Result) FirstRequiredFailure() *Check {
	for i := range r.Checks {
		if r.Checks[i].Required && !r.Checks[i].Passed {
			return &r.Checks[i]
		}
	}
	return nil
}

// Passed reports whether every required check passed
func (r Result) Passed() bool {
	return r.FirstRequiredFailure() == nil
}

// ValidationError reports a failed required health check. The cluster
// provisioner treats it as attempt failure and retries with a fresh
// cluster; it only becomes fatal once attempts are exhausted.
type ValidationError struct {
	Check  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("health check %s failed: %s", e.Check, e.Detail)
}
