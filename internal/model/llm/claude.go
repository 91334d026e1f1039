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
	defaultClaudeModel     = "claude-3-5-sonnet-latest"
	defaultClaudeBaseURL   = "https://api.anthropic.com/v1"
	defaultClaudeMaxTokens = 1024
	anthropicVersion       = "2023-06-01"
)

// ClaudeAdapter Anthropic Messages API 适配器
type ClaudeAdapter struct {
	cfg    AdapterConfig
	client *resty.Client
}

// NewClaudeAdapter 创建 Claude 适配器；Messages API 要求 max_tokens，未配置时取 1024
func NewClaudeAdapter(cfg AdapterConfig) *ClaudeAdapter {
	if cfg.Model == "" {
		cfg.Model = defaultClaudeModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultClaudeBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultClaudeMaxTokens
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ClaudeAdapter{cfg: cfg, client: newRestyClient(cfg)}
}

// Key 实现 Adapter
func (a *ClaudeAdapter) Key() ModelKey { return ModelClaude }

type claudeRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []map[string]string `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete 实现 Adapter；多个 text 块按顺序拼接
func (a *ClaudeAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if a.cfg.APIKey == "" {
		return "", missingCredential(ModelClaude)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", a.cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(claudeRequest{
			Model:       pickModel(req, a.cfg.Model),
			System:      req.SystemPersona,
			Messages:    []map[string]string{{"role": "user", "content": req.UserText}},
			MaxTokens:   a.cfg.MaxTokens,
			Temperature: a.cfg.Temperature,
		}).
		Post(a.cfg.BaseURL + "/messages")
	if err := checkResponse(ModelClaude, resp, err); err != nil {
		return "", err
	}

	var result claudeResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", &ProviderError{Kind: FailureMalformedResponse, Provider: ModelClaude, Message: "decode response", Err: err}
	}
	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", emptyReply(ModelClaude)
	}
	return sb.String(), nil
}
