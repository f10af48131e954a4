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

// Package controlplane is a thin authenticated JSON client to the central
// control plane. It never retries — retry, when wanted, is the
// caller's policy — but it does wrap every call in a circuit breaker so a
// flapping control plane stops being hammered with requests that are about
// to fail anyway.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fussionstudio/agent/internal/identity"
	"github.com/fussionstudio/agent/internal/log"
	"github.com/fussionstudio/agent/pkg/httpclient"
)

// Client is an authenticated JSON client to the control plane's HTTPS API.
type Client struct {
	baseURL  string
	identity identity.MachineIdentity
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// New constructs a Client. httpClient may be nil, in which case a default
// httpclient.Config with retries disabled (RetryAttempts: 0) is used —
// the control-plane client itself never retries.
func New(baseURL string, id identity.MachineIdentity, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if httpClient == nil {
		cfg := httpclient.DefaultConfig()
		cfg.RetryAttempts = 0
		cfg.UserAgent = "fussion-agent-control-plane-client/1.0"
		var err error
		httpClient, err = httpclient.New(cfg)
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "control-plane",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:  baseURL,
		identity: id,
		http:     httpClient,
		breaker:  breaker,
		logger:   logger,
	}, nil
}

// Get performs an authenticated GET against path (relative to baseURL) and
// decodes the JSON response into a generic value. It returns nil, nil on any
// transport error, non-2xx status, circuit-open condition, or absent
// identity — each case is logged, never returned as an error to keep the
// "no retry, caller decides" contract simple for sync call sites.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs an authenticated POST with a JSON body against path.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// GetAsync runs Get in a goroutine and delivers the result on the returned
// channel.
func (c *Client) GetAsync(ctx context.Context, path string) <-chan Result {
	return c.doAsync(ctx, http.MethodGet, path, nil)
}

// PostAsync runs Post in a goroutine and delivers the result on the
// returned channel.
func (c *Client) PostAsync(ctx context.Context, path string, body any) <-chan Result {
	return c.doAsync(ctx, http.MethodPost, path, body)
}

// Result is the outcome of an asynchronous control-plane call.
type Result struct {
	Value any
	Err   error
}

func (c *Client) doAsync(ctx context.Context, method, path string, body any) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		val, err := c.do(ctx, method, path, body)
		ch <- Result{Value: val, Err: err}
	}()
	return ch
}

func (c *Client) do(ctx context.Context, method, path string, body any) (any, error) {
	if !c.identity.Valid() {
		c.logger.Error("control-plane call skipped: missing machine identity", "path", path)
		return nil, nil
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			c.logger.Error("control-plane call skipped: failed to encode body", "path", path, "error", err)
			return nil, nil
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, bodyReader)
	if err != nil {
		c.logger.Error("control-plane call skipped: failed to build request", "path", path, "error", err)
		return nil, nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.identity.Apply(req)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("control plane returned HTTP %d for %s %s", resp.StatusCode, method, path)
		}

		if len(data) == 0 {
			return nil, nil
		}

		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	})

	if err != nil {
		c.logger.Warn("control-plane call failed",
			"method", method, "path", path,
			log.MachineIDKey, log.SanitizeSecret(c.identity.Token),
			"error", err,
		)
		return nil, nil
	}

	return result, nil
}
