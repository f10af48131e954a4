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

// Package progress maintains a long-lived websocket subscription to the
// backend's event stream, upserting a process-wide per-job progress
// map that HTTP handlers read from.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	conductorlog "github.com/fussionstudio/agent/internal/log"
)

// Status is a progress entry's lifecycle state. Completed is sticky: once
// set, a straggling progress event for the same job must not demote it.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// reconnectDelay is the wait after a failed connect attempt and
// closeReconnectDelay the wait after an established connection closes.
// Run applies exactly one of them before the next attempt, so a connect
// failure stalls for reconnectDelay, not reconnectDelay plus a second wait.
const (
	reconnectDelay      = 10 * time.Second
	closeReconnectDelay = 5 * time.Second
)

// Entry is the externally observable state of one job's progress.
type Entry struct {
	Percent   float64
	Node      string
	Timestamp int64
	Value     float64
	Max       float64
	Status    Status
	Error     string
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type progressData struct {
	Value    float64 `json:"value"`
	Max      float64 `json:"max"`
	Node     string  `json:"node"`
	PromptID string  `json:"prompt_id"`
}

type executedData struct {
	PromptID string `json:"prompt_id"`
}

type executionErrorData struct {
	PromptID     string `json:"prompt_id"`
	ExceptionMsg string `json:"exception_message"`
}

// Tracker owns the websocket client and the process-wide progress map. One
// instance is a process-wide singleton, constructed at startup.
type Tracker struct {
	wsURL    string
	clientID string
	logger   *slog.Logger

	connected atomic.Bool

	mu      sync.Mutex
	entries map[string]Entry
}

// New constructs a Tracker. wsBase is the backend's websocket base URL
// (e.g. "ws://127.0.0.1:8188"); clientID is a stable identifier
// distinguishing this subscriber from any browser UI clients.
func New(wsBase, clientID string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(wsBase)
	if err == nil {
		q := u.Query()
		q.Set("clientId", clientID)
		u.RawQuery = q.Encode()
		u.Path = "/ws"
	}
	wsURL := wsBase
	if err == nil {
		wsURL = u.String()
	}
	return &Tracker{
		wsURL:    wsURL,
		clientID: clientID,
		logger:   logger,
		entries:  make(map[string]Entry),
	}
}

// Run drives the reconnect-for-life subscriber loop until ctx is canceled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.connectAndRead(ctx); err != nil {
			delay := reconnectDelay
			if t.connected.Swap(false) {
				delay = closeReconnectDelay
			}
			t.logger.Warn("progress websocket disconnected", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
	}
}

func (t *Tracker) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.wsURL, nil)
	if err != nil {
		t.logger.Warn("progress websocket connect failed", "error", err)
		return err
	}
	defer conn.Close()

	t.connected.Store(true)
	t.logger.Info("progress websocket connected", conductorlog.EventKey, "connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.handleMessage(payload)
	}
}

func (t *Tracker) handleMessage(payload []byte) {
	var evt inboundEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.logger.Warn("malformed progress event", "error", err)
		return
	}

	switch evt.Type {
	case "progress":
		var d progressData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return
		}
		t.upsertProgress(d)
	case "executed":
		var d executedData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return
		}
		t.markCompleted(d.PromptID)
	case "execution_error":
		var d executionErrorData
		if err := json.Unmarshal(evt.Data, &d); err != nil {
			return
		}
		t.markError(d.PromptID, d.ExceptionMsg)
	}
}

func (t *Tracker) upsertProgress(d progressData) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[d.PromptID]; ok && existing.Status == StatusCompleted {
		return
	}

	percent := 0.0
	if d.Max > 0 {
		percent = d.Value / d.Max * 100
	}
	t.entries[d.PromptID] = Entry{
		Percent:   percent,
		Node:      d.Node,
		Timestamp: nowMillis(),
		Value:     d.Value,
		Max:       d.Max,
		Status:    StatusRunning,
	}
}

func (t *Tracker) markCompleted(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.entries[jobID]
	entry.Percent = 100
	entry.Status = StatusCompleted
	entry.Timestamp = nowMillis()
	t.entries[jobID] = entry
}

func (t *Tracker) markError(jobID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[jobID] = Entry{
		Percent:   0,
		Status:    StatusError,
		Error:     message,
		Timestamp: nowMillis(),
	}
}

// Lookup returns a snapshot of the progress entry for jobID.
func (t *Tracker) Lookup(jobID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[jobID]
	return e, ok
}

// Connected reports whether the subscriber currently holds an open
// websocket connection. Status handlers use this to answer 503 while
// disconnected.
func (t *Tracker) Connected() bool {
	return t.connected.Load()
}

// All returns a snapshot of every tracked job's progress entry, keyed by
// prompt id.
func (t *Tracker) All() map[string]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Entry, len(t.entries))
	for id, e := range t.entries {
		out[id] = e
	}
	return out
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
