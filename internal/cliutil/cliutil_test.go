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

package cliutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_DecodesSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ping", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()
	addrFlag = srv.URL
	defer func() { addrFlag = "" }()

	var out map[string]any
	require.NoError(t, Request("GET", "/ping", nil, &out))
	assert.Equal(t, true, out["ok"])
}

func TestRequest_ReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()
	addrFlag = srv.URL
	defer func() { addrFlag = "" }()

	err := Request("GET", "/fail", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRequest_EncodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bar", body["foo"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	addrFlag = srv.URL
	defer func() { addrFlag = "" }()

	require.NoError(t, Request("POST", "/submit", map[string]any{"foo": "bar"}, nil))
}

func TestBaseURL_DefaultsWhenUnset(t *testing.T) {
	addrFlag = ""
	assert.Equal(t, "http://127.0.0.1:8189", BaseURL())
}
