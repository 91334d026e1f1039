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
	"encoding/json"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIAdapter OpenAI Chat Completions 适配器
type OpenAIAdapter struct {
	cfg    AdapterConfig
	client *resty.Client
}

// NewOpenAIAdapter 创建 OpenAI 适配器；BaseURL/Model 为空时使用默认值
func NewOpenAIAdapter(cfg AdapterConfig) *OpenAIAdapter {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAIAdapter{cfg: cfg, client: newRestyClient(cfg)}
}

// Key 实现 Adapter
func (a *OpenAIAdapter) Key() ModelKey { return ModelOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete 实现 Adapter
func (a *OpenAIAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if a.cfg.APIKey == "" {
		return "", missingCredential(ModelOpenAI)
	}

	messages := make([]openAIMessage, 0, 2)
	if req.SystemPersona != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemPersona})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.UserText})

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+a.cfg.APIKey).
		SetBody(openAIRequest{
			Model:       pickModel(req, a.cfg.Model),
			Messages:    messages,
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		}).
		Post(a.cfg.BaseURL + "/chat/completions")
	if err := checkResponse(ModelOpenAI, resp, err); err != nil {
		return "", err
	}

	var result openAIResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", &ProviderError{Kind: FailureMalformedResponse, Provider: ModelOpenAI, Message: "decode response", Err: err}
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == nil || *result.Choices[0].Message.Content == "" {
		return "", emptyReply(ModelOpenAI)
	}
	return *result.Choices[0].Message.Content, nil
}
