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

package util

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

type templateOption string

const (
	// MissingKeyError fails rendering when the template references an
	// undefined variable
	MissingKeyError templateOption = "missingkey=error"
	// MissingKeyZero renders undefined variables as their zero value
	MissingKeyZero templateOption = "missingkey=zero"
)

// RenderTemplate renders a go-template with a handful of custom functions
func RenderTemplate(original []byte, inputData any, options templateOption) ([]byte, error) {
	var rendered bytes.Buffer
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"multiply": func(a, b int) int {
			return a * b
		},
		"sequence": func(start, end int) []int {
			var sequence []int
			for i := start; i <= end; i++ {
				sequence = append(sequence, i)
			}
			return sequence
		},
	}
	t, err := template.New("").Option(string(options)).Funcs(funcMap).Parse(string(original))
	if err != nil {
		return nil, fmt.Errorf("parsing error: %s", err)
	}
	if err = t.Execute(&rendered, inputData); err != nil {
		return nil, fmt.Errorf("rendering error: %s", err)
	}
	return rendered.Bytes(), nil
}

// EnvToMap returns the process environment as a template input map
func EnvToMap() map[string]any {
	envMap := make(map[string]any)
	for _, v := range os.Environ() {
		envVar := strings.SplitN(v, "=", 2)
		envMap[envVar[0]] = envVar[1]
	}
	return envMap
}
