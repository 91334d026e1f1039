// Copyright 2026 fanjia1024
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

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kindErr struct{ kind string }

func (e *kindErr) Error() string { return "kind " + e.kind }

func TestWrap_KeepsChain(t *testing.T) {
	assert.Nil(t, Wrap(nil, "load agent"))

	wrapped := Wrap(ErrNotFound, "load agent")
	require.Error(t, wrapped)
	assert.Equal(t, "load agent: not found", wrapped.Error())
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrConflict))
}

func TestWrapf_FormatsPrefix(t *testing.T) {
	assert.Nil(t, Wrapf(nil, "agent %s", "a1"))

	wrapped := Wrapf(ErrInvalidArg, "agent %s model %q", "a1", "x")
	assert.Equal(t, `agent a1 model "x": invalid argument`, wrapped.Error())
	assert.True(t, errors.Is(wrapped, ErrInvalidArg))
}

func TestAs_FindsTypedError(t *testing.T) {
	base := &kindErr{kind: "rate_limited"}
	wrapped := Wrapf(base, "dispatch %s", "gemini")

	var target *kindErr
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "rate_limited", target.kind)
}
