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

package loadtest

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed scripts/default.js
var defaultScript string

// script returns the k6 script content, either the user-provided file or the
// embedded default
func (o *Orchestrator) script() (string, error) {
	if o.loadTest.Script == "" {
		return defaultScript, nil
	}
	content, err := os.ReadFile(o.loadTest.Script)
	if err != nil {
		return "", fmt.Errorf("error reading script %s: %v", o.loadTest.Script, err)
	}
	return string(content), nil
}
