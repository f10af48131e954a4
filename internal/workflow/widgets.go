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
	"encoding/json"
	"fmt"
)

var controlValues = map[string]bool{
	"fixed": true, "increment": true, "decrement": true, "randomize": true,
}

// buildWidgetInputs implements the widgets_values mapping. widgets_values
// is either a map (keys used directly) or a list (mapped positionally
// against the catalog's widget-name sequence, or self-describing when its
// elements are dicts).
func (r *rewriter) buildWidgetInputs(node EditorNode, linkInputs map[string]any) map[string]any {
	widgetInputs := make(map[string]any)
	if len(node.WidgetsValues) == 0 {
		return widgetInputs
	}

	var asMap map[string]any
	if err := json.Unmarshal(node.WidgetsValues, &asMap); err == nil {
		for key, value := range asMap {
			if key == "videopreview" || key == "preview" {
				continue
			}
			if _, linked := linkInputs[key]; linked {
				continue
			}
			widgetInputs[key] = value
		}
		return widgetInputs
	}

	var asList []any
	if err := json.Unmarshal(node.WidgetsValues, &asList); err != nil {
		return widgetInputs
	}

	if hasDictElement(asList) {
		processDictWidgetValues(asList, widgetInputs, linkInputs)
		return widgetInputs
	}

	filtered := filterControlValues(asList)

	info, hasCatalog := r.catalog.Lookup(node.Type)
	if !hasCatalog {
		if len(filtered) > 0 {
			r.logger.Warn("could not map widget values for unknown node type", "type", node.Type, "node_id", node.ID)
		}
		return widgetInputs
	}

	names := info.WidgetNames()
	for i, value := range filtered {
		if i >= len(names) {
			break
		}
		name := names[i]
		if name == "" {
			continue
		}
		if _, linked := linkInputs[name]; linked {
			continue
		}
		widgetInputs[name] = value
	}
	return widgetInputs
}

func hasDictElement(values []any) bool {
	for _, v := range values {
		if _, ok := v.(map[string]any); ok {
			return true
		}
	}
	return false
}

// processDictWidgetValues handles widgets_values lists whose elements are
// self-describing dicts: a "type" field names the input directly; a "lora"
// field is numbered lora_1, lora_2, ...; an empty string is the
// "add another row" UI placeholder.
func processDictWidgetValues(values []any, widgetInputs map[string]any, linkInputs map[string]any) {
	loraCounter := 0

	for _, v := range values {
		switch val := v.(type) {
		case map[string]any:
			if len(val) == 0 {
				continue
			}
			if typeName, ok := val["type"].(string); ok && typeName != "" {
				if _, linked := linkInputs[typeName]; !linked {
					widgetInputs[typeName] = val
				}
				continue
			}
			if _, ok := val["lora"]; ok {
				loraCounter++
				name := fmt.Sprintf("lora_%d", loraCounter)
				if _, linked := linkInputs[name]; linked {
					continue
				}
				clean := make(map[string]any, len(val))
				for k, fv := range val {
					if k == "strengthTwo" && fv == nil {
						continue
					}
					clean[k] = fv
				}
				widgetInputs[name] = clean
			}
		case string:
			if val == "" {
				widgetInputs["➕ Add Lora"] = val
			}
		}
	}
}

func filterControlValues(values []any) []any {
	filtered := make([]any, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && controlValues[s] {
			continue
		}
		filtered = append(filtered, v)
	}
	return filtered
}
