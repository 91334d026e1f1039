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
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	defaultGeminiModel   = "gemini-1.5-pro"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// GeminiAdapter Google Gemini generateContent 适配器
type GeminiAdapter struct {
	cfg    AdapterConfig
	client *resty.Client
}

// NewGeminiAdapter 创建 Gemini 适配器；systemInstruction 需要 v1beta 端点
func NewGeminiAdapter(cfg AdapterConfig) *GeminiAdapter {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &GeminiAdapter{cfg: cfg, client: newRestyClient(cfg)}
}

// Key 实现 Adapter
func (a *GeminiAdapter) Key() ModelKey { return ModelGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete 实现 Adapter
func (a *GeminiAdapter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if a.cfg.APIKey == "" {
		return "", missingCredential(ModelGemini)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserText}}}},
	}
	if req.SystemPersona != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPersona}}}
	}
	if a.cfg.Temperature > 0 || a.cfg.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{
			Temperature:     a.cfg.Temperature,
			MaxOutputTokens: a.cfg.MaxTokens,
		}
	}

	endpoint := a.cfg.BaseURL + "/models/" + url.PathEscape(pickModel(req, a.cfg.Model)) + ":generateContent"
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", a.cfg.APIKey).
		SetBody(body).
		Post(endpoint)
	if err := checkResponse(ModelGemini, resp, err); err != nil {
		return "", err
	}

	var result geminiResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", &ProviderError{Kind: FailureMalformedResponse, Provider: ModelGemini, Message: "decode response", Err: err}
	}
	if len(result.Candidates) == 0 {
		return "", emptyReply(ModelGemini)
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", emptyReply(ModelGemini)
	}
	return sb.String(), nil
}
