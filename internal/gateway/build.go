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

	"clawlink/internal/model/llm"
	"clawlink/pkg/config"
	"clawlink/pkg/log"
	"clawlink/pkg/secrets"
)

// FromConfig 按 model.providers 构造 Gateway；仅注册 enabled 的已知提供商，凭证支持 secret:// 引用。
// 凭证解析失败不阻止启动，该 Adapter 以空凭证注册，调用时返回 Unauthorized。
func FromConfig(ctx context.Context, cfg *config.Config, store secrets.Store, logger *log.Logger) (*Gateway, error) {
	limits := make(map[llm.ModelKey]llm.LimitConfig, len(cfg.Model.RateLimits))
	for key, rl := range cfg.Model.RateLimits {
		limits[llm.ModelKey(key)] = llm.LimitConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			MaxConcurrent:     rl.MaxConcurrent,
		}
	}
	limiter := llm.NewRateLimiter(limits)

	timeout := cfg.CompletionTimeout()
	adapters := make([]llm.Adapter, 0, len(cfg.Model.Providers))
	for _, key := range llm.KnownModelKeys() {
		pc, ok := cfg.Model.Providers[string(key)]
		if !ok || !pc.Enabled {
			continue
		}
		apiKey, err := secrets.Resolve(ctx, store, pc.APIKey)
		if err != nil {
			logger.Warn("模型凭证解析失败", "model_key", key, "error", err)
			apiKey = ""
		}
		adapter, err := llm.NewAdapter(key, llm.AdapterConfig{
			APIKey:      apiKey,
			BaseURL:     pc.BaseURL,
			Model:       pc.Model,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
			Timeout:     timeout,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, llm.NewRateLimitedAdapter(adapter, limiter))
	}
	for key := range cfg.Model.Providers {
		if !llm.ModelKey(key).Known() {
			return nil, fmt.Errorf("unsupported model provider %q", key)
		}
	}
	return New(adapters, WithTimeout(timeout)), nil
}
