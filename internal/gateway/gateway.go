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
	"fmt"
	"sort"
	"strings"
	"time"

	"clawlink/internal/model/llm"
	"clawlink/pkg/metrics"
	"clawlink/pkg/tracing"
)

// DefaultCompletionTimeout 未配置时单次 dispatch 的上限
const DefaultCompletionTimeout = 30 * time.Second

// Gateway 按 ModelKey 将补全请求路由到 Adapter；注册表在构造时固定，之后只读
type Gateway struct {
	adapters map[llm.ModelKey]llm.Adapter
	timeout  time.Duration
}

// Option Gateway 构造选项
type Option func(*Gateway)

// WithTimeout 设置单次 dispatch 超时
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// New 创建 Gateway；同一 key 重复注册时后者覆盖前者
func New(adapters []llm.Adapter, opts ...Option) *Gateway {
	g := &Gateway{
		adapters: make(map[llm.ModelKey]llm.Adapter, len(adapters)),
		timeout:  DefaultCompletionTimeout,
	}
	for _, a := range adapters {
		if a != nil {
			g.adapters[a.Key()] = a
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Has 是否注册了该 ModelKey
func (g *Gateway) Has(key llm.ModelKey) bool {
	_, ok := g.adapters[key]
	return ok
}

// Keys 返回已注册的 ModelKey（按字典序）
func (g *Gateway) Keys() []llm.ModelKey {
	keys := make([]llm.ModelKey, 0, len(g.adapters))
	for k := range g.adapters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Timeout 返回单次 dispatch 超时
func (g *Gateway) Timeout() time.Duration { return g.timeout }

type completion struct {
	text string
	err  error
}

// unknownModelLabel 未注册 model_key 在指标与 span 中使用的标签值
const unknownModelLabel = "unknown"

// Dispatch 将请求交给对应 Adapter，并把所有结果归一化为 llm.Result；从不返回 error，也不写日志
func (g *Gateway) Dispatch(ctx context.Context, req llm.CompletionRequest) llm.Result {
	key := string(req.ModelKey)
	if !g.Has(req.ModelKey) {
		// 未注册的 key 来自调用方输入，统一归入一个标签
		key = unknownModelLabel
	}
	start := time.Now()
	ctx, span := tracing.StartDispatchSpan(ctx, key)

	result := g.dispatch(ctx, req)

	outcome := "ok"
	if !result.OK {
		outcome = string(result.Kind)
	}
	metrics.DispatchTotal.WithLabelValues(key, outcome).Inc()
	metrics.DispatchDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
	tracing.EndWithOutcome(span, string(result.Kind))
	return result
}

func (g *Gateway) dispatch(ctx context.Context, req llm.CompletionRequest) llm.Result {
	adapter, ok := g.adapters[req.ModelKey]
	if !ok {
		return llm.Failure(llm.FailureUnknownModel, fmt.Sprintf("model key %q is not registered", req.ModelKey))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// 缓冲为 1，超时返回后 Adapter goroutine 仍可写入并退出
	done := make(chan completion, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- completion{err: &llm.ProviderError{
					Kind:     llm.FailureMalformedResponse,
					Provider: req.ModelKey,
					Message:  fmt.Sprintf("adapter panic: %v", r),
				}}
			}
		}()
		text, err := adapter.Complete(ctx, req)
		done <- completion{text: text, err: err}
	}()

	select {
	case c := <-done:
		if c.err != nil {
			if ctx.Err() != nil {
				return llm.Failure(llm.FailureTimeout, fmt.Sprintf("%s did not answer within %s", req.ModelKey, g.timeout))
			}
			return llm.Failure(llm.Classify(c.err), c.err.Error())
		}
		if strings.TrimSpace(c.text) == "" {
			return llm.Failure(llm.FailureMalformedResponse, fmt.Sprintf("%s returned empty text", req.ModelKey))
		}
		return llm.Success(c.text)
	case <-ctx.Done():
		return llm.Failure(llm.FailureTimeout, fmt.Sprintf("%s did not answer within %s", req.ModelKey, g.timeout))
	}
}
