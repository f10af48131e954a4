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

package tunnel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTunnelBinary writes a tiny shell script that behaves enough like the
// real tunnel binary for supervisor tests: it understands "--version" (for
// the PATH probe) and "tunnel --url <addr>" (emits a URL line to stdout
// then sleeps until killed).
func fakeTunnelBinary(t *testing.T, url string, exitImmediately bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "faketunnel.sh")

	body := fmt.Sprintf(`#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "faketunnel 1.0"
  exit 0
fi
echo "starting tunnel"
echo "%s"
`, url)
	if exitImmediately {
		body += "exit 0\n"
	} else {
		body += "trap 'exit 0' TERM\nwhile true; do sleep 1; done\n"
	}

	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	return 18080
}

func TestSupervisor_StartFiresURLReadyOnce(t *testing.T) {
	bin := fakeTunnelBinary(t, "https://abc-def.trycloudflare.com", false)

	var fired int32
	var gotURL string
	sup := New(bin, freePort(t), func(url string) {
		atomic.AddInt32(&fired, 1)
		gotURL = url
	}, nil, nil)
	defer sup.Stop()

	ok := sup.Start(context.Background())
	require.True(t, ok)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, "https://abc-def.trycloudflare.com", gotURL)

	url, known := sup.URL()
	require.True(t, known)
	require.Equal(t, gotURL, url)
	require.True(t, sup.Running())
}

func TestSupervisor_StartIsIdempotent(t *testing.T) {
	bin := fakeTunnelBinary(t, "https://idempotent.trycloudflare.com", false)

	sup := New(bin, freePort(t), nil, nil, nil)
	defer sup.Stop()

	require.True(t, sup.Start(context.Background()))
	firstCmd := sup.cmd
	require.True(t, sup.Start(context.Background()))
	require.Same(t, firstCmd, sup.cmd)
}

func TestSupervisor_MissingBinaryReturnsFalse(t *testing.T) {
	sup := New("/no/such/tunnel/binary", freePort(t), nil, nil, nil)
	ok := sup.Start(context.Background())
	require.False(t, ok)
	require.False(t, sup.Running())
}

func TestSupervisor_StopTerminatesProcess(t *testing.T) {
	bin := fakeTunnelBinary(t, "https://stopme.trycloudflare.com", false)

	sup := New(bin, freePort(t), nil, nil, nil)
	require.True(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, known := sup.URL()
		return known
	}, 3*time.Second, 10*time.Millisecond)

	sup.Stop()

	require.Eventually(t, func() bool {
		return !sup.Running()
	}, 3*time.Second, 10*time.Millisecond)

	_, known := sup.URL()
	require.False(t, known)
}

func TestSupervisor_ExitClearsState(t *testing.T) {
	bin := fakeTunnelBinary(t, "https://exitnow.trycloudflare.com", true)

	sup := New(bin, freePort(t), nil, nil, nil)
	require.True(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool {
		return !sup.Running()
	}, 3*time.Second, 10*time.Millisecond)
}
