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

// Package identity holds the machine identity token used to authenticate
// every outbound control-plane call.
package identity

import "net/http"

// machineIDHeader is the mandatory authentication header on every
// control-plane request.
const machineIDHeader = "x-machine-id"

// MachineIdentity is a process-wide immutable token obtained from
// configuration at startup. A zero-value MachineIdentity (Token == "")
// represents a missing identity: callers must treat that as a hard
// configuration failure rather than sending an unauthenticated request.
type MachineIdentity struct {
	Token string
}

// New constructs a MachineIdentity from a resolved token.
func New(token string) MachineIdentity {
	return MachineIdentity{Token: token}
}

// Valid reports whether the identity carries a non-empty token.
func (m MachineIdentity) Valid() bool {
	return m.Token != ""
}

// Apply sets the x-machine-id header on req. Callers must check Valid()
// before calling Apply if the absence of an identity should short-circuit
// the request instead of sending it unauthenticated.
func (m MachineIdentity) Apply(req *http.Request) {
	req.Header.Set(machineIDHeader, m.Token)
}
