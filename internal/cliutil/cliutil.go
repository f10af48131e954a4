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

// Package cliutil holds the flag state and HTTP helper shared by every
// agentctl subcommand: the daemon's base URL, the --json output switch, and
// a request helper built on pkg/httpclient.
package cliutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fussionstudio/agent/pkg/httpclient"
)

var (
	addrFlag string
	jsonFlag bool
)

// RegisterFlagPointers returns pointers to the root command's persistent
// flag variables for binding.
func RegisterFlagPointers() (*string, *bool) {
	return &addrFlag, &jsonFlag
}

// BaseURL returns the configured daemon address, defaulting to the agent's
// own HTTP listen address.
func BaseURL() string {
	if addrFlag != "" {
		return addrFlag
	}
	if v := os.Getenv("AGENTCTL_ADDR"); v != "" {
		return v
	}
	return "http://127.0.0.1:8189"
}

// JSON reports whether --json output was requested.
func JSON() bool {
	return jsonFlag
}

// Request performs method against path on the daemon, JSON-encoding body
// (if non-nil) and JSON-decoding the response into out (if non-nil). A
// non-2xx response is returned as an error carrying the response body.
func Request(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, BaseURL()+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "agentctl/1.0"
	client, err := httpclient.New(cfg)
	if err != nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response from %s %s: %w", method, path, err)
		}
	}
	return nil
}

// PrintResult writes v to stdout: pretty JSON when --json was passed,
// otherwise the caller-supplied human-readable text.
func PrintResult(v any, text string) error {
	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Println(text)
	return nil
}
