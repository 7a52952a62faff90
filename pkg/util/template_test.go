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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	rendered, err := RenderTemplate([]byte("name: {{ .name }}"), map[string]any{"name": "echo"}, MissingKeyError)
	require.NoError(t, err)
	assert.Equal(t, "name: echo", string(rendered))
}

func TestRenderTemplate_Functions(t *testing.T) {
	input := map[string]any{"replicas": 3}
	rendered, err := RenderTemplate([]byte(`{{ add .replicas 1 }} {{ multiply .replicas 2 }}`), input, MissingKeyError)
	require.NoError(t, err)
	assert.Equal(t, "4 6", string(rendered))

	rendered, err = RenderTemplate([]byte(`{{ range sequence 1 3 }}{{ . }},{{ end }}`), nil, MissingKeyZero)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3,", string(rendered))
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	_, err := RenderTemplate([]byte("{{ .undefined }}"), map[string]any{}, MissingKeyError)
	assert.Error(t, err)

	_, err = RenderTemplate([]byte("{{ .undefined }}"), map[string]any{}, MissingKeyZero)
	assert.NoError(t, err)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate([]byte("{{ .unclosed"), nil, MissingKeyError)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing error")
}

func TestEnvToMap(t *testing.T) {
	t.Setenv("INGRESS_BENCH_TEST_VAR", "value")
	envMap := EnvToMap()
	assert.Equal(t, "value", envMap["INGRESS_BENCH_TEST_VAR"])
}
