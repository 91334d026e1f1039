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
	"time"

	"clawlink/pkg/metrics"
)

// RateLimitedAdapter 包装任意 Adapter，在真实调用前执行限流
type RateLimitedAdapter struct {
	inner   Adapter
	limiter *RateLimiter
}

// NewRateLimitedAdapter 创建带限流的 Adapter；limiter 为 nil 时退化为直接调用
func NewRateLimitedAdapter(inner Adapter, limiter *RateLimiter) *RateLimitedAdapter {
	return &RateLimitedAdapter{inner: inner, limiter: limiter}
}

// Key 返回底层 Adapter 的 key
func (a *RateLimitedAdapter) Key() ModelKey { return a.inner.Key() }

// Complete 实现 Adapter；限流等待失败时上下文已到期归为 Timeout，否则归为 RateLimited
func (a *RateLimitedAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if a.limiter == nil {
		return a.inner.Complete(ctx, req)
	}
	key := a.inner.Key()
	start := time.Now()
	if err := a.limiter.Wait(ctx, key); err != nil {
		kind := FailureRateLimited
		if ctx.Err() != nil {
			kind = FailureTimeout
		}
		return "", &ProviderError{Kind: kind, Provider: key, Message: "local rate limit", Err: err}
	}
	defer a.limiter.Release(key)
	if waited := time.Since(start); waited > 100*time.Millisecond {
		metrics.RateLimitWaitSeconds.WithLabelValues("model", string(key)).Observe(waited.Seconds())
	}
	return a.inner.Complete(ctx, req)
}
