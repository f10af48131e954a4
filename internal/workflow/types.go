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

// Package workflow converts editor-format workflow graphs into the flat
// execution format the backend's job endpoint accepts, and rewrites
// externally hosted asset URLs inside a workflow into locally downloaded
// filenames.
package workflow

import (
	"bytes"
	"encoding/json"
)

// EditorNode is one node in an EditorWorkflow's node list.
type EditorNode struct {
	ID            int             `json:"id"`
	Type          string          `json:"type"`
	Mode          int             `json:"mode"`
	Title         string          `json:"title,omitempty"`
	Inputs        []EditorInput   `json:"inputs,omitempty"`
	Outputs       []EditorOutput  `json:"outputs,omitempty"`
	WidgetsValues json.RawMessage `json:"widgets_values,omitempty"`
	Properties    map[string]any  `json:"properties,omitempty"`
}

// EditorInput is one declared input slot on an EditorNode. Link is nil when
// the slot is unconnected (its value comes from widgets_values instead).
type EditorInput struct {
	Name string `json:"name"`
	Link *int   `json:"link"`
}

// EditorOutput is one declared output slot on an EditorNode.
type EditorOutput struct {
	Links []int `json:"links,omitempty"`
}

// EditorWorkflow is the editor's DAG description: a flat node list plus a
// flat link list, `[linkId, sourceNodeId, sourceSlot, targetNodeId,
// targetSlot, dataType]` per link. Links are heterogeneous tuples (five
// ints and a type string), so each is decoded as a raw JSON array.
type EditorWorkflow struct {
	Nodes []EditorNode      `json:"nodes"`
	Links []json.RawMessage `json:"links"`
}

// ExecutionNode is one entry of an ExecutionWorkflow.
type ExecutionNode struct {
	ClassType string         `json:"class_type"`
	Inputs    *OrderedInputs `json:"inputs"`
	Meta      ExecutionMeta  `json:"_meta"`
}

// OrderedInputs is a node's input set, preserving the insertion order
// assembleOrderedInputs computes. A plain map[string]any would marshal its
// keys alphabetically, discarding an order downstream consumers observe.
type OrderedInputs struct {
	keys   []string
	values map[string]any
}

// NewOrderedInputs returns an empty OrderedInputs ready for Set calls.
func NewOrderedInputs() *OrderedInputs {
	return &OrderedInputs{values: make(map[string]any)}
}

// Set appends name to the key order on first use; subsequent sets of the
// same name update the value in place without moving its position.
func (o *OrderedInputs) Set(name string, value any) {
	if _, exists := o.values[name]; !exists {
		o.keys = append(o.keys, name)
	}
	o.values[name] = value
}

// Has reports whether name has already been set.
func (o *OrderedInputs) Has(name string) bool {
	_, ok := o.values[name]
	return ok
}

// Len reports the number of distinct keys.
func (o *OrderedInputs) Len() int {
	return len(o.keys)
}

// MarshalJSON emits the inputs as a JSON object in insertion order.
func (o *OrderedInputs) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into OrderedInputs, preserving the
// key order as it appears on the wire.
func (o *OrderedInputs) UnmarshalJSON(data []byte) error {
	entries := orderedObject(data)
	o.keys = make([]string, 0, len(entries))
	o.values = make(map[string]any, len(entries))
	for _, e := range entries {
		var v any
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return err
		}
		o.Set(e.Key, v)
	}
	return nil
}

// ExecutionMeta carries the node's display title through to execution.
type ExecutionMeta struct {
	Title string `json:"title"`
}

// ExecutionWorkflow maps stringified node id to its flattened node entry.
type ExecutionWorkflow map[string]ExecutionNode

type link struct {
	sourceID   int
	sourceSlot int
	targetID   int
	targetSlot int
	dataType   string
}

func parseLinks(raw []json.RawMessage) map[int]link {
	out := make(map[int]link, len(raw))
	for _, l := range raw {
		var fields []any
		if err := json.Unmarshal(l, &fields); err != nil || len(fields) < 5 {
			continue
		}
		id, ok := toInt(fields[0])
		if !ok {
			continue
		}
		entry := link{}
		entry.sourceID, _ = toInt(fields[1])
		entry.sourceSlot, _ = toInt(fields[2])
		entry.targetID, _ = toInt(fields[3])
		entry.targetSlot, _ = toInt(fields[4])
		if len(fields) > 5 {
			if s, ok := fields[5].(string); ok {
				entry.dataType = s
			}
		}
		out[id] = entry
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		return int(f), err == nil
	default:
		return 0, false
	}
}
