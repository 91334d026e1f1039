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
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

// Classify 将任意错误归入 FailureKind；nil 返回空串
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	// 连接拒绝、DNS 失败、连接重置等均视为厂商不可达
	return FailureUnreachable
}

// KindForStatus HTTP 状态码到 FailureKind 的映射
func KindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureUnauthorized
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status >= 500:
		return FailureUnreachable
	default:
		return FailureMalformedResponse
	}
}

// checkResponse 将 resty 调用结果转换为 *ProviderError；成功返回 nil
func checkResponse(provider ModelKey, resp *resty.Response, err error) error {
	if err != nil {
		return &ProviderError{Kind: Classify(err), Provider: provider, Message: "request failed", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		body := strings.TrimSpace(resp.String())
		if len(body) > 512 {
			body = body[:512]
		}
		return &ProviderError{
			Kind:       KindForStatus(resp.StatusCode()),
			Provider:   provider,
			StatusCode: resp.StatusCode(),
			Message:    body,
		}
	}
	return nil
}

// missingCredential 缺少凭证时的统一错误
func missingCredential(provider ModelKey) error {
	return newProviderError(provider, FailureUnauthorized, "api key not configured")
}

// emptyReply 厂商返回缺少文本字段时的统一错误
func emptyReply(provider ModelKey) error {
	return newProviderError(provider, FailureMalformedResponse, "response has no text")
}
