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
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// InputSpec describes one declared input of a node class.
type InputSpec struct {
	Name string
	// IsWidget is true when this input is a literal choice-list, one of
	// the scalar widget types (INT, FLOAT, STRING, BOOLEAN), or a
	// lower-cased custom widget type — i.e. something that arrives via
	// widgets_values rather than a graph connection.
	IsWidget bool
}

// ClassInfo is a node class's catalog entry: its declared inputs in
// declaration order, its display name, and whether it is an OUTPUT_NODE
// (kept even with no connected outputs).
type ClassInfo struct {
	Required   []InputSpec
	Optional   []InputSpec
	Display    string
	OutputNode bool
}

// AllInputs returns required then optional input names, in declaration
// order — the catalog order used for emitting the output inputs map.
func (c ClassInfo) AllInputs() []string {
	names := make([]string, 0, len(c.Required)+len(c.Optional))
	for _, in := range c.Required {
		names = append(names, in.Name)
	}
	for _, in := range c.Optional {
		names = append(names, in.Name)
	}
	return names
}

// WidgetNames returns, in declaration order, the names of inputs the
// catalog considers widgets (i.e. not graph connections).
func (c ClassInfo) WidgetNames() []string {
	var names []string
	for _, in := range c.Required {
		if in.IsWidget {
			names = append(names, in.Name)
		}
	}
	for _, in := range c.Optional {
		if in.IsWidget {
			names = append(names, in.Name)
		}
	}
	return names
}

// Catalog resolves a node type string to its ClassInfo.
type Catalog interface {
	Lookup(nodeType string) (ClassInfo, bool)
}

// MemCatalog is a Catalog backed by an in-memory map, typically populated
// once at startup from the backend's node-introspection endpoint and
// reused for the life of the process.
type MemCatalog struct {
	mu      sync.RWMutex
	classes map[string]ClassInfo
}

// NewMemCatalog constructs an empty catalog. Populate it via LoadFromObjectInfo
// or Set.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{classes: make(map[string]ClassInfo)}
}

// Set installs or replaces a class's catalog entry.
func (c *MemCatalog) Set(nodeType string, info ClassInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[nodeType] = info
}

// Lookup implements Catalog.
func (c *MemCatalog) Lookup(nodeType string) (ClassInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.classes[nodeType]
	return info, ok
}

// Range calls fn once per catalog entry. Used to merge a freshly loaded
// catalog (e.g. from LoadFromObjectInfo) into a long-lived instance without
// replacing the pointer every other package already holds a reference to.
func (c *MemCatalog) Range(fn func(nodeType string, info ClassInfo)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for nodeType, info := range c.classes {
		fn(nodeType, info)
	}
}

// rawClassInfo mirrors the backend's object_info response shape: each
// input is either a bare type-name string, or a [typeName, config] pair
// where typeName may itself be a literal choice list.
type rawClassInfo struct {
	Input struct {
		Required json.RawMessage `json:"required"`
		Optional json.RawMessage `json:"optional"`
	} `json:"input"`
	DisplayName string `json:"display_name"`
	OutputNode  bool   `json:"output_node"`
}

// orderedObject decodes a JSON object preserving key declaration order —
// Go maps don't, and catalog order is observable in the emitted inputs.
func orderedObject(raw json.RawMessage) []struct {
	Key   string
	Value json.RawMessage
} {
	var entries []struct {
		Key   string
		Value json.RawMessage
	}
	if len(raw) == 0 {
		return entries
	}

	dec := json.NewDecoder(bytesReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return entries
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return entries
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			break
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			break
		}
		entries = append(entries, struct {
			Key   string
			Value json.RawMessage
		}{Key: key, Value: value})
	}
	return entries
}

var scalarWidgetTypes = map[string]bool{
	"INT": true, "FLOAT": true, "STRING": true, "BOOLEAN": true,
}

// LoadFromObjectInfo populates the catalog from a raw object_info JSON
// document keyed by node type, as returned by the backend.
func LoadFromObjectInfo(data []byte) (*MemCatalog, error) {
	var raw map[string]rawClassInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	catalog := NewMemCatalog()
	for nodeType, rc := range raw {
		catalog.Set(nodeType, ClassInfo{
			Required:   classifyInputs(rc.Input.Required),
			Optional:   classifyInputs(rc.Input.Optional),
			Display:    rc.DisplayName,
			OutputNode: rc.OutputNode,
		})
	}
	return catalog, nil
}

func classifyInputs(raw json.RawMessage) []InputSpec {
	entries := orderedObject(raw)
	specs := make([]InputSpec, 0, len(entries))
	for _, e := range entries {
		specs = append(specs, InputSpec{Name: e.Key, IsWidget: isWidgetType(e.Value)})
	}
	return specs
}

func bytesReader(raw json.RawMessage) io.Reader {
	return bytes.NewReader(raw)
}

// isWidgetType inspects a single INPUT_TYPES entry and decides whether it
// describes a widget (choice list, scalar type, or lower-cased custom
// widget) rather than a typed graph connection.
func isWidgetType(raw json.RawMessage) bool {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if scalarWidgetTypes[asString] {
			return true
		}
		return asString == strings.ToLower(asString) && asString != ""
	}

	var asTuple []json.RawMessage
	if err := json.Unmarshal(raw, &asTuple); err == nil && len(asTuple) > 0 {
		var typeName string
		if err := json.Unmarshal(asTuple[0], &typeName); err == nil {
			if scalarWidgetTypes[typeName] {
				return true
			}
			return typeName == strings.ToLower(typeName)
		}
		var choices []json.RawMessage
		if err := json.Unmarshal(asTuple[0], &choices); err == nil {
			return true
		}
	}

	return false
}
