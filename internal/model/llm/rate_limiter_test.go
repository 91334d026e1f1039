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

package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	key   ModelKey
	calls atomic.Int32
	block chan struct{}
}

func (s *stubAdapter) Key() ModelKey { return s.key }

func (s *stubAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	return "ok", nil
}

func TestRateLimiter_UnconfiguredKeyPasses(t *testing.T) {
	l := NewRateLimiter(nil)
	require.NoError(t, l.Wait(context.Background(), ModelOpenAI))
	l.Release(ModelOpenAI)
	assert.Nil(t, l.Stats(ModelOpenAI))
}

func TestRateLimiter_Concurrency(t *testing.T) {
	l := NewRateLimiter(map[ModelKey]LimitConfig{ModelGemini: {MaxConcurrent: 1}})
	require.NoError(t, l.Wait(context.Background(), ModelGemini))
	assert.Equal(t, 0, l.Stats(ModelGemini)["available_slots"])

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, ModelGemini))

	l.Release(ModelGemini)
	require.NoError(t, l.Wait(context.Background(), ModelGemini))
	l.Release(ModelGemini)
}

func TestRateLimitedAdapter_Passthrough(t *testing.T) {
	inner := &stubAdapter{key: ModelClaude}
	a := NewRateLimitedAdapter(inner, nil)
	assert.Equal(t, ModelClaude, a.Key())
	text, err := a.Complete(context.Background(), CompletionRequest{UserText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestRateLimitedAdapter_ExhaustedRate(t *testing.T) {
	inner := &stubAdapter{key: ModelOpenAI}
	// 1 RPM：第一次消耗 burst，第二次需等待约 60s，超过 deadline
	l := NewRateLimiter(map[ModelKey]LimitConfig{ModelOpenAI: {RequestsPerMinute: 1}})
	a := NewRateLimitedAdapter(inner, l)

	_, err := a.Complete(context.Background(), CompletionRequest{UserText: "x"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Complete(ctx, CompletionRequest{UserText: "x"})
	assert.Equal(t, FailureRateLimited, Classify(err))
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestRateLimitedAdapter_ConcurrencyTimeout(t *testing.T) {
	inner := &stubAdapter{key: ModelQwen, block: make(chan struct{})}
	l := NewRateLimiter(map[ModelKey]LimitConfig{ModelQwen: {MaxConcurrent: 1}})
	a := NewRateLimitedAdapter(inner, l)

	done := make(chan struct{})
	go func() {
		_, _ = a.Complete(context.Background(), CompletionRequest{UserText: "x"})
		close(done)
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Complete(ctx, CompletionRequest{UserText: "x"})
	assert.Equal(t, FailureTimeout, Classify(err))

	close(inner.block)
	<-done
}
