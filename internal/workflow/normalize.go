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
	"log/slog"
	"strconv"
)

const (
	modeMuted     = 2
	modeBypassed  = 4
	typePrimitive = "PrimitiveNode"
)

// IsAPIFormat reports whether raw already looks like an ExecutionWorkflow:
// a flat map of objects each carrying class_type, rather than a nodes+links
// graph description.
func IsAPIFormat(raw []byte) bool {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return false
	}
	if _, hasNodes := generic["nodes"]; hasNodes {
		if _, hasLinks := generic["links"]; hasLinks {
			return false
		}
	}

	for key, value := range generic {
		if key == "prompt" || key == "extra_data" || key == "client_id" {
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(value, &obj); err != nil {
			continue
		}
		if _, ok := obj["class_type"]; ok {
			return true
		}
	}
	return false
}

// Normalize converts raw editor-format workflow JSON into an
// ExecutionWorkflow. If raw already looks like API format, it is decoded
// and returned unchanged (idempotent detection).
func Normalize(raw []byte, catalog Catalog, logger *slog.Logger) (ExecutionWorkflow, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if IsAPIFormat(raw) {
		var exec ExecutionWorkflow
		if err := json.Unmarshal(raw, &exec); err != nil {
			return nil, fmt.Errorf("decoding already-API-format workflow: %w", err)
		}
		return exec, nil
	}

	var editor EditorWorkflow
	if err := json.Unmarshal(raw, &editor); err != nil {
		return nil, fmt.Errorf("decoding editor-format workflow: %w", err)
	}

	return normalizeGraph(editor, catalog, logger), nil
}

type rewriter struct {
	nodesByID       map[int]EditorNode
	linkMap         map[int]link
	bypassed        map[int]bool
	primitiveValues map[string]any
	excluded        map[int]bool
	catalog         Catalog
	logger          *slog.Logger
}

func normalizeGraph(wf EditorWorkflow, catalog Catalog, logger *slog.Logger) ExecutionWorkflow {
	r := &rewriter{
		nodesByID:       make(map[int]EditorNode, len(wf.Nodes)),
		linkMap:         parseLinks(wf.Links),
		bypassed:        make(map[int]bool),
		primitiveValues: make(map[string]any),
		excluded:        make(map[int]bool),
		catalog:         catalog,
		logger:          logger,
	}

	connectedSources := make(map[int]bool)
	for _, l := range r.linkMap {
		connectedSources[l.sourceID] = true
	}

	for _, node := range wf.Nodes {
		r.nodesByID[node.ID] = node

		if node.Mode == modeBypassed {
			r.bypassed[node.ID] = true
		}

		if node.Type == typePrimitive {
			if v, ok := firstWidgetValue(node.WidgetsValues); ok {
				r.primitiveValues[strconv.Itoa(node.ID)] = v
			}
		}

		r.classifyExclusion(node, connectedSources)
	}

	out := make(ExecutionWorkflow)
	for _, node := range wf.Nodes {
		if node.Type == "" {
			continue
		}
		if node.Mode == modeMuted || node.Mode == modeBypassed {
			continue
		}
		if node.Type == typePrimitive || node.Type == "Note" {
			continue
		}
		if r.excluded[node.ID] {
			continue
		}

		out[strconv.Itoa(node.ID)] = r.buildNode(node)
	}
	return out
}

func (r *rewriter) classifyExclusion(node EditorNode, connectedSources map[int]bool) {
	if node.Type == "LoadImageOutput" {
		r.excluded[node.ID] = true
		return
	}
	if connectedSources[node.ID] {
		return
	}
	info, ok := r.catalog.Lookup(node.Type)
	if ok && info.OutputNode {
		return
	}
	r.excluded[node.ID] = true
}

// traceThroughBypassed resolves a connection whose declared source is a
// bypassed node, following that node's first linked input recursively
// until it reaches a non-bypassed source. A visited-set guards cycles.
func (r *rewriter) traceThroughBypassed(sourceID, sourceSlot int, visited map[int]bool) (int, int) {
	if visited[sourceID] {
		return sourceID, sourceSlot
	}
	visited[sourceID] = true

	if !r.bypassed[sourceID] {
		return sourceID, sourceSlot
	}

	node, ok := r.nodesByID[sourceID]
	if !ok {
		return sourceID, sourceSlot
	}
	for _, in := range node.Inputs {
		if in.Link == nil {
			continue
		}
		l, ok := r.linkMap[*in.Link]
		if !ok {
			continue
		}
		return r.traceThroughBypassed(l.sourceID, l.sourceSlot, visited)
	}
	return sourceID, sourceSlot
}

func (r *rewriter) buildNode(node EditorNode) ExecutionNode {
	info, hasCatalog := r.catalog.Lookup(node.Type)

	title := node.Title
	if title == "" {
		if hasCatalog && info.Display != "" {
			title = info.Display
		} else {
			title = node.Type
		}
	}

	linkInputs := make(map[string]any)
	primitiveInputs := make(map[string]any)

	for _, in := range node.Inputs {
		if in.Link == nil {
			continue
		}
		l, ok := r.linkMap[*in.Link]
		if !ok {
			continue
		}

		actualSourceID, actualSourceSlot := r.traceThroughBypassed(l.sourceID, l.sourceSlot, map[int]bool{})
		sourceIDStr := strconv.Itoa(actualSourceID)

		if v, ok := r.primitiveValues[sourceIDStr]; ok {
			primitiveInputs[in.Name] = v
			continue
		}
		if r.excluded[actualSourceID] {
			continue
		}
		linkInputs[in.Name] = []any{sourceIDStr, actualSourceSlot}
	}

	widgetInputs := r.buildWidgetInputs(node, linkInputs)

	inputs := assembleOrderedInputs(info, hasCatalog, widgetInputs, primitiveInputs, linkInputs)

	if !hasCatalog {
		r.logger.Warn("normalizing node with unknown type", "type", node.Type, "node_id", node.ID)
	}

	return ExecutionNode{
		ClassType: node.Type,
		Inputs:    inputs,
		Meta:      ExecutionMeta{Title: title},
	}
}

// assembleOrderedInputs implements the emission order: catalog-known
// classes emit widgets+primitives in catalog order, then links in catalog
// order, then any leftovers by map iteration order; unknown classes emit
// widgets, then primitives, then links. Within each group of an unknown
// class the order follows Go map iteration and is not stable between runs.
func assembleOrderedInputs(info ClassInfo, hasCatalog bool, widgetInputs, primitiveInputs, linkInputs map[string]any) *OrderedInputs {
	out := NewOrderedInputs()

	if hasCatalog {
		order := info.AllInputs()
		for _, name := range order {
			if v, ok := widgetInputs[name]; ok {
				out.Set(name, v)
			} else if v, ok := primitiveInputs[name]; ok {
				out.Set(name, v)
			}
		}
		for _, name := range order {
			if out.Has(name) {
				continue
			}
			if v, ok := linkInputs[name]; ok {
				out.Set(name, v)
			}
		}
	}

	for name, v := range widgetInputs {
		if !out.Has(name) {
			out.Set(name, v)
		}
	}
	for name, v := range primitiveInputs {
		if !out.Has(name) {
			out.Set(name, v)
		}
	}
	for name, v := range linkInputs {
		if !out.Has(name) {
			out.Set(name, v)
		}
	}
	return out
}

func firstWidgetValue(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, false
		}
		return list[0], true
	}
	return nil, false
}
