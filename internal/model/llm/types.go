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
	"fmt"
)

// ModelKey 标识一个 Provider Adapter；集合在编译期封闭，新增厂商需新增常量、Adapter 与 NewAdapter 分支
type ModelKey string

const (
	ModelOpenAI ModelKey = "openai"
	ModelClaude ModelKey = "claude"
	ModelGemini ModelKey = "gemini"
	ModelQwen   ModelKey = "qwen"
)

// KnownModelKeys 返回全部受支持的 ModelKey（稳定顺序）
func KnownModelKeys() []ModelKey {
	return []ModelKey{ModelOpenAI, ModelClaude, ModelGemini, ModelQwen}
}

// Known 是否为受支持的 ModelKey
func (k ModelKey) Known() bool {
	switch k {
	case ModelOpenAI, ModelClaude, ModelGemini, ModelQwen:
		return true
	}
	return false
}

// CompletionRequest 归一化的补全请求；每次调用构造，不持久化
type CompletionRequest struct {
	ModelKey      ModelKey `json:"model_key"`
	SystemPersona string   `json:"system_persona,omitempty"`
	UserText      string   `json:"user_text"`
	// Model 覆盖 Adapter 配置的默认模型/版本，可选
	Model string `json:"model,omitempty"`
}

// FailureKind 归一化失败分类
type FailureKind string

const (
	FailureUnauthorized      FailureKind = "Unauthorized"
	FailureRateLimited       FailureKind = "RateLimited"
	FailureMalformedResponse FailureKind = "MalformedResponse"
	FailureTimeout           FailureKind = "Timeout"
	FailureUnreachable       FailureKind = "Unreachable"
	FailureUnknownModel      FailureKind = "UnknownModel"
)

// Result 归一化结果：OK=true 时只有 Text，否则只有 Kind 与 Message
type Result struct {
	OK      bool        `json:"ok"`
	Text    string      `json:"text,omitempty"`
	Kind    FailureKind `json:"kind,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Success 构造成功结果
func Success(text string) Result {
	return Result{OK: true, Text: text}
}

// Failure 构造失败结果
func Failure(kind FailureKind, message string) Result {
	return Result{OK: false, Kind: kind, Message: message}
}

// ProviderError Adapter 返回的厂商无关错误；Gateway 依据 Kind 归一化
type ProviderError struct {
	Kind       FailureKind
	Provider   ModelKey
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(provider ModelKey, kind FailureKind, format string, args ...any) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}
