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

package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clawlink/internal/model/llm"
	"clawlink/pkg/config"
	"clawlink/pkg/log"
	"clawlink/pkg/metrics"
	"clawlink/pkg/secrets"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter 可编排返回值的 Adapter，记录调用次数
type fakeAdapter struct {
	key   llm.ModelKey
	text  string
	err   error
	hang  bool
	panic bool

	mu    sync.Mutex
	calls int
	last  llm.CompletionRequest
}

func (f *fakeAdapter) Key() llm.ModelKey { return f.key }

func (f *fakeAdapter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDispatch_Success(t *testing.T) {
	a := &fakeAdapter{key: llm.ModelGemini, text: "hi there"}
	g := New([]llm.Adapter{a})

	req := llm.CompletionRequest{ModelKey: llm.ModelGemini, SystemPersona: "p", UserText: "hello"}
	res := g.Dispatch(context.Background(), req)
	assert.Equal(t, llm.Success("hi there"), res)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, req, a.last)
}

func TestDispatch_UnknownModelDoesNotCallAdapters(t *testing.T) {
	a := &fakeAdapter{key: llm.ModelOpenAI, text: "x"}
	g := New([]llm.Adapter{a})

	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: "llama", UserText: "hi"})
	assert.False(t, res.OK)
	assert.Equal(t, llm.FailureUnknownModel, res.Kind)
	assert.Empty(t, res.Text)
	assert.Equal(t, 0, a.Calls())
}

func TestDispatch_UnknownModelsShareOneMetricLabel(t *testing.T) {
	g := New([]llm.Adapter{&fakeAdapter{key: llm.ModelOpenAI, text: "x"}})
	unknown := metrics.DispatchTotal.WithLabelValues(unknownModelLabel, string(llm.FailureUnknownModel))
	before := testutil.ToFloat64(unknown)
	series := testutil.CollectAndCount(metrics.DispatchTotal)

	for _, key := range []llm.ModelKey{"llama-1", "llama-2", "does-not-exist"} {
		res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: key, UserText: "hi"})
		assert.Equal(t, llm.FailureUnknownModel, res.Kind)
	}
	assert.Equal(t, before+3, testutil.ToFloat64(unknown))
	assert.Equal(t, series, testutil.CollectAndCount(metrics.DispatchTotal))
}

func TestDispatch_Timeout(t *testing.T) {
	a := &fakeAdapter{key: llm.ModelClaude, hang: true}
	g := New([]llm.Adapter{a}, WithTimeout(30*time.Millisecond))

	start := time.Now()
	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelClaude, UserText: "hi"})
	assert.Equal(t, llm.FailureTimeout, res.Kind)
	assert.Less(t, time.Since(start), time.Second)
}

// ignoresContext 不响应取消的 Adapter，Gateway 仍须按时返回
type ignoresContext struct{ release chan struct{} }

func (i *ignoresContext) Key() llm.ModelKey { return llm.ModelQwen }

func (i *ignoresContext) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	<-i.release
	return "late", nil
}

func TestDispatch_TimeoutWithUncooperativeAdapter(t *testing.T) {
	a := &ignoresContext{release: make(chan struct{})}
	defer close(a.release)
	g := New([]llm.Adapter{a}, WithTimeout(20*time.Millisecond))

	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelQwen, UserText: "hi"})
	assert.Equal(t, llm.FailureTimeout, res.Kind)
}

func TestDispatch_EmptyTextIsMalformed(t *testing.T) {
	g := New([]llm.Adapter{&fakeAdapter{key: llm.ModelOpenAI, text: "  "}})
	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelOpenAI, UserText: "hi"})
	assert.Equal(t, llm.FailureMalformedResponse, res.Kind)
}

func TestDispatch_PanicIsMalformed(t *testing.T) {
	g := New([]llm.Adapter{&fakeAdapter{key: llm.ModelOpenAI, panic: true}})
	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelOpenAI, UserText: "hi"})
	assert.Equal(t, llm.FailureMalformedResponse, res.Kind)
	assert.Contains(t, res.Message, "boom")
}

func TestDispatch_ClassifiesAdapterErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want llm.FailureKind
	}{
		{"unauthorized", &llm.ProviderError{Kind: llm.FailureUnauthorized, Provider: llm.ModelGemini}, llm.FailureUnauthorized},
		{"rate limited", &llm.ProviderError{Kind: llm.FailureRateLimited, Provider: llm.ModelGemini}, llm.FailureRateLimited},
		{"opaque", errors.New("connection reset"), llm.FailureUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := New([]llm.Adapter{&fakeAdapter{key: llm.ModelGemini, err: tc.err}})
			res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelGemini, UserText: "hi"})
			assert.False(t, res.OK)
			assert.Equal(t, tc.want, res.Kind)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestDispatch_ConcurrentIsolation(t *testing.T) {
	fast := &fakeAdapter{key: llm.ModelOpenAI, text: "fast"}
	slow := &fakeAdapter{key: llm.ModelClaude, hang: true}
	g := New([]llm.Adapter{fast, slow}, WithTimeout(200*time.Millisecond))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelClaude, UserText: "hi"})
	}()

	start := time.Now()
	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelOpenAI, UserText: "hi"})
	assert.True(t, res.OK)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	wg.Wait()
}

func TestKeysAndHas(t *testing.T) {
	g := New([]llm.Adapter{&fakeAdapter{key: llm.ModelQwen}, &fakeAdapter{key: llm.ModelClaude}})
	assert.Equal(t, []llm.ModelKey{llm.ModelClaude, llm.ModelQwen}, g.Keys())
	assert.True(t, g.Has(llm.ModelQwen))
	assert.False(t, g.Has(llm.ModelOpenAI))
	assert.Equal(t, DefaultCompletionTimeout, g.Timeout())
}

func TestFromConfig(t *testing.T) {
	store := secrets.NewMemoryStore(map[string]string{"gemini-key": "g-123"})

	cfg := &config.Config{
		Gateway: config.GatewayConfig{CompletionTimeout: "5s"},
		Model: config.ModelConfig{
			Providers: map[string]config.ProviderConfig{
				"gemini": {Enabled: true, APIKey: "secret://gemini-key"},
				"openai": {Enabled: false, APIKey: "sk"},
				"claude": {Enabled: true, APIKey: "secret://missing"},
			},
			RateLimits: map[string]config.RateLimitConfig{"gemini": {MaxConcurrent: 2}},
		},
	}
	g, err := FromConfig(context.Background(), cfg, store, log.Nop())
	require.NoError(t, err)
	assert.Equal(t, []llm.ModelKey{llm.ModelClaude, llm.ModelGemini}, g.Keys())
	assert.Equal(t, 5*time.Second, g.Timeout())

	// 凭证缺失的提供商仍注册，调用时返回 Unauthorized
	res := g.Dispatch(context.Background(), llm.CompletionRequest{ModelKey: llm.ModelClaude, UserText: "hi"})
	assert.Equal(t, llm.FailureUnauthorized, res.Kind)
}

func TestFromConfig_UnknownProvider(t *testing.T) {
	cfg := &config.Config{
		Gateway: config.GatewayConfig{CompletionTimeout: "5s"},
		Model: config.ModelConfig{Providers: map[string]config.ProviderConfig{
			"llama": {Enabled: true},
		}},
	}
	_, err := FromConfig(context.Background(), cfg, nil, log.Nop())
	assert.Error(t, err)
}
