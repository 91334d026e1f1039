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
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultQwenModel   = "qwen-plus"
	defaultQwenBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

// QwenAdapter 通义千问适配器，走 DashScope 的 OpenAI 兼容模式
type QwenAdapter struct {
	cfg   AdapterConfig
	model *openai.ChatModel
}

// NewQwenAdapter 创建 Qwen 适配器；APIKey 为空时不创建底层 ChatModel，调用时返回 Unauthorized
func NewQwenAdapter(cfg AdapterConfig) (*QwenAdapter, error) {
	if cfg.Model == "" {
		cfg.Model = defaultQwenModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultQwenBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	a := &QwenAdapter{cfg: cfg}
	if cfg.APIKey == "" {
		return a, nil
	}

	chatCfg := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		chatCfg.MaxTokens = &maxTokens
	}
	if cfg.Temperature > 0 {
		temperature := float32(cfg.Temperature)
		chatCfg.Temperature = &temperature
	}
	cm, err := openai.NewChatModel(context.Background(), chatCfg)
	if err != nil {
		return nil, err
	}
	a.model = cm
	return a, nil
}

// Key 实现 Adapter
func (a *QwenAdapter) Key() ModelKey { return ModelQwen }

// Complete 实现 Adapter；req.Model 覆盖通过 eino 的 WithModel 选项传递
func (a *QwenAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if a.model == nil {
		return "", missingCredential(ModelQwen)
	}

	messages := make([]*schema.Message, 0, 2)
	if req.SystemPersona != "" {
		messages = append(messages, schema.SystemMessage(req.SystemPersona))
	}
	messages = append(messages, schema.UserMessage(req.UserText))

	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	msg, err := a.model.Generate(ctx, messages, opts...)
	if err != nil {
		return "", classifyEinoError(err)
	}
	if msg == nil || msg.Content == "" {
		return "", emptyReply(ModelQwen)
	}
	return msg.Content, nil
}

// classifyEinoError eino 只返回包装后的错误文本，按其中的状态码归类
func classifyEinoError(err error) error {
	if ctxErr := Classify(err); ctxErr == FailureTimeout {
		return &ProviderError{Kind: FailureTimeout, Provider: ModelQwen, Err: err}
	}
	text := err.Error()
	kind := FailureUnreachable
	switch {
	case strings.Contains(text, "status code: 401"), strings.Contains(text, "status code: 403"):
		kind = FailureUnauthorized
	case strings.Contains(text, "status code: 429"):
		kind = FailureRateLimited
	case strings.Contains(text, "status code: 4"):
		kind = FailureMalformedResponse
	}
	return &ProviderError{Kind: kind, Provider: ModelQwen, Err: err}
}
