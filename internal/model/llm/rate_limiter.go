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
	"sync"

	"golang.org/x/time/rate"
)

// LimitConfig 单个 ModelKey 的限流配置；零值表示不限制该维度
type LimitConfig struct {
	RequestsPerMinute float64
	MaxConcurrent     int
}

// RateLimiter 按 ModelKey 维度的请求速率 + 并发限流器
type RateLimiter struct {
	mu       sync.RWMutex
	limiters map[ModelKey]*keyLimiter
}

type keyLimiter struct {
	requests  *rate.Limiter
	semaphore chan struct{}
	config    LimitConfig
}

// NewRateLimiter 创建限流器；未出现在 configs 中的 key 不限流
func NewRateLimiter(configs map[ModelKey]LimitConfig) *RateLimiter {
	l := &RateLimiter{limiters: make(map[ModelKey]*keyLimiter, len(configs))}
	for key, cfg := range configs {
		l.limiters[key] = newKeyLimiter(cfg)
	}
	return l
}

func newKeyLimiter(cfg LimitConfig) *keyLimiter {
	kl := &keyLimiter{config: cfg}
	if cfg.RequestsPerMinute > 0 {
		// burst = 2 秒的配额，至少 1
		burst := int(cfg.RequestsPerMinute / 60.0 * 2)
		if burst < 1 {
			burst = 1
		}
		kl.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), burst)
	}
	if cfg.MaxConcurrent > 0 {
		kl.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return kl
}

func (l *RateLimiter) get(key ModelKey) *keyLimiter {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[key]
}

// Wait 阻塞直到获得执行许可；成功后必须调用 Release
func (l *RateLimiter) Wait(ctx context.Context, key ModelKey) error {
	kl := l.get(key)
	if kl == nil {
		return nil
	}
	if kl.requests != nil {
		if err := kl.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if kl.semaphore != nil {
		select {
		case kl.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Release 释放并发 slot
func (l *RateLimiter) Release(key ModelKey) {
	kl := l.get(key)
	if kl == nil || kl.semaphore == nil {
		return
	}
	select {
	case <-kl.semaphore:
	default:
	}
}

// Stats 返回某 key 的限流状态，未配置时返回 nil
func (l *RateLimiter) Stats(key ModelKey) map[string]any {
	kl := l.get(key)
	if kl == nil {
		return nil
	}
	stats := map[string]any{
		"requests_per_minute": kl.config.RequestsPerMinute,
		"max_concurrent":      kl.config.MaxConcurrent,
	}
	if kl.semaphore != nil {
		stats["current_concurrent"] = len(kl.semaphore)
		stats["available_slots"] = cap(kl.semaphore) - len(kl.semaphore)
	}
	return stats
}
