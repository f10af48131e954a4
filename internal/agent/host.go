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

package agent

import (
	"context"
	"fmt"
)

// SyncHost forces a registration POST to the control plane using the
// agent's currently known tunnel URL and freshly sampled host facts,
// independent of the tunnel supervisor's own heartbeat timer.
func (a *Agent) SyncHost(ctx context.Context) error {
	url, ready := a.tunnel.URL()
	if !ready {
		return fmt.Errorf("tunnel URL not yet available")
	}
	a.registerWithControlPlane(ctx, url)
	return nil
}
