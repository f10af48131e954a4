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

package identity

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineIdentity_Valid(t *testing.T) {
	assert.True(t, New("tok-123").Valid())
	assert.False(t, New("").Valid())
	assert.False(t, MachineIdentity{}.Valid())
}

func TestMachineIdentity_Apply(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://control-plane.example/api/machines/connect", nil)
	assert.NoError(t, err)

	New("tok-123").Apply(req)
	assert.Equal(t, "tok-123", req.Header.Get("x-machine-id"))
}
