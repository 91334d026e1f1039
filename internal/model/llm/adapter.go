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
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Adapter 单个厂商的补全适配器；除连接/凭证配置外无跨调用状态，可并发使用
type Adapter interface {
	// Key 返回该 Adapter 注册的 ModelKey
	Key() ModelKey
	// Complete 将请求映射为厂商调用；失败返回 *ProviderError 或底层网络错误，由 Gateway 归一化
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// AdapterConfig Adapter 构造参数（来自 model.providers.<key>）
type AdapterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string // 默认模型/版本
	MaxTokens   int
	Temperature float64
	// Timeout 单次 HTTP 调用上限；Gateway 另有统一超时
	Timeout time.Duration
}

// NewAdapter 按 ModelKey 构造 Adapter；未知 key 返回错误
func NewAdapter(key ModelKey, cfg AdapterConfig) (Adapter, error) {
	switch key {
	case ModelOpenAI:
		return NewOpenAIAdapter(cfg), nil
	case ModelClaude:
		return NewClaudeAdapter(cfg), nil
	case ModelGemini:
		return NewGeminiAdapter(cfg), nil
	case ModelQwen:
		a, err := NewQwenAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported model key: %q", key)
	}
}

// newRestyClient 厂商调用共用的 resty 客户端；不做重试，单次调用由 Gateway 约束
func newRestyClient(cfg AdapterConfig) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("Content-Type", "application/json")
	return client
}

func pickModel(req CompletionRequest, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
