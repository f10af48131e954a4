// Copyright 2025 Tom Barlow
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

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(n ExecutionNode, name string) any {
	v, _ := n.Inputs.Get(name)
	return v
}

func TestIsAPIFormat(t *testing.T) {
	assert.False(t, IsAPIFormat([]byte(`{"nodes":[],"links":[]}`)))
	assert.True(t, IsAPIFormat([]byte(`{"1":{"class_type":"KSampler","inputs":{}}}`)))
	assert.False(t, IsAPIFormat([]byte(`{"foo":"bar"}`)))
}

func TestNormalize_AlreadyAPIFormatReturnedUnchanged(t *testing.T) {
	raw := []byte(`{"1":{"class_type":"KSampler","inputs":{"seed":42},"_meta":{"title":"Sampler"}}}`)
	result, err := Normalize(raw, NewMemCatalog(), nil)
	require.NoError(t, err)
	require.Contains(t, result, "1")
	assert.Equal(t, "KSampler", result["1"].ClassType)
	assert.Equal(t, float64(42), input(result["1"], "seed"))
}

func TestNormalize_DropsMutedNode(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "CheckpointLoaderSimple", "mode": 0, "outputs": [{"links":[1]}], "widgets_values": ["model.safetensors"]},
			{"id": 2, "type": "MutedNode", "mode": 2, "outputs": [{"links":[2]}]},
			{"id": 3, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":1}]}
		],
		"links": [
			[1, 1, 0, 3, 0, "MODEL"]
		]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true, Required: []InputSpec{{Name: "images"}}})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, "2")
	require.Contains(t, result, "3")
	assert.Equal(t, []any{"1", 0}, input(result["3"], "images"))
}

func TestNormalize_PrimitiveNodeInlinesValue(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "PrimitiveNode", "mode": 0, "outputs": [{"links":[1]}], "widgets_values": [77]},
			{"id": 2, "type": "KSampler", "mode": 0, "inputs": [{"name":"seed","link":1}], "outputs": [{"links":[2]}]},
			{"id": 3, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":2}]}
		],
		"links": [
			[1, 1, 0, 2, 0, "INT"],
			[2, 2, 0, 3, 0, "IMAGE"]
		]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, "1")
	require.Contains(t, result, "2")
	assert.Equal(t, float64(77), input(result["2"], "seed"))
}

func TestNormalize_BypassedNodeTracedThrough(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "LoadImage", "mode": 0, "outputs": [{"links":[1]}]},
			{"id": 2, "type": "ImageScale", "mode": 4, "inputs": [{"name":"image","link":1}], "outputs": [{"links":[2]}]},
			{"id": 3, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":2}]}
		],
		"links": [
			[1, 1, 0, 2, 0, "IMAGE"],
			[2, 2, 0, 3, 0, "IMAGE"]
		]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, "2")
	require.Contains(t, result, "3")
	assert.Equal(t, []any{"1", 0}, input(result["3"], "images"))
}

func TestNormalize_ExcludesNodeWithNoConnectedOutputsUnlessOutputNode(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "PreviewTextNode", "mode": 0},
			{"id": 2, "type": "SaveImage", "mode": 0}
		],
		"links": []
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, "1")
	assert.Contains(t, result, "2")
}

func TestNormalize_LoadImageOutputAlwaysExcluded(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "LoadImageOutput", "mode": 0, "outputs": [{"links":[1]}]},
			{"id": 2, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":1}]}
		],
		"links": [[1, 1, 0, 2, 0, "IMAGE"]]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, "1")
	require.Contains(t, result, "2")
	assert.False(t, result["2"].Inputs.Has("images"))
}

func TestNormalize_WidgetListFiltersControlValuesAndMaps(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "KSampler", "mode": 0, "outputs": [{"links":[1]}], "widgets_values": [42, "randomize", 20]},
			{"id": 2, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":1}]}
		],
		"links": [[1, 1, 0, 2, 0, "IMAGE"]]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("KSampler", ClassInfo{
		Required: []InputSpec{{Name: "seed", IsWidget: true}, {Name: "steps", IsWidget: true}, {Name: "images"}},
	})
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	require.Contains(t, result, "1")
	assert.Equal(t, float64(42), input(result["1"], "seed"))
	assert.Equal(t, float64(20), input(result["1"], "steps"))
}

func TestNormalize_DictWidgetValuesWithLoraNumbering(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "LoraLoaderStack", "mode": 0, "outputs": [{"links":[1]}], "widgets_values": [
				{"lora": "styleA", "strength": 1.0, "strengthTwo": null},
				{"lora": "styleB", "strength": 0.5}
			]},
			{"id": 2, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":1}]}
		],
		"links": [[1, 1, 0, 2, 0, "MODEL"]]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	lora1, ok := input(result["1"], "lora_1").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "styleA", lora1["lora"])
	_, hasStrengthTwo := lora1["strengthTwo"]
	assert.False(t, hasStrengthTwo)

	lora2, ok := input(result["1"], "lora_2").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "styleB", lora2["lora"])
}

func TestNormalize_CatalogOrderEmitsWidgetsThenLinks(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "LoadImage", "mode": 0, "outputs": [{"links":[1]}]},
			{"id": 2, "type": "KSampler", "mode": 0, "inputs": [{"name":"model","link":1}], "widgets_values": [99], "outputs": [{"links":[2]}]},
			{"id": 3, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":2}]}
		],
		"links": [
			[1, 1, 0, 2, 0, "MODEL"],
			[2, 2, 0, 3, 0, "IMAGE"]
		]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("KSampler", ClassInfo{
		Required: []InputSpec{{Name: "seed", IsWidget: true}, {Name: "model"}},
	})
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)

	node := result["2"]
	assert.Equal(t, float64(99), input(node, "seed"))
	assert.Equal(t, []any{"1", 0}, input(node, "model"))
	assert.Equal(t, []string{"seed", "model"}, node.Inputs.keys)
}

func TestNormalize_UnknownNodeTypeStillProducesOutput(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "type": "SomeUnknownCustomNode", "mode": 0, "outputs": [{"links":[1]}], "widgets_values": [1,2,3]},
			{"id": 2, "type": "SaveImage", "mode": 0, "inputs": [{"name":"images","link":1}]}
		],
		"links": [[1, 1, 0, 2, 0, "IMAGE"]]
	}`)
	catalog := NewMemCatalog()
	catalog.Set("SaveImage", ClassInfo{OutputNode: true})

	result, err := Normalize(raw, catalog, nil)
	require.NoError(t, err)
	require.Contains(t, result, "1")
	assert.Equal(t, "SomeUnknownCustomNode", result["1"].ClassType)
}
