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

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"clawlink/internal/channel"
	"clawlink/pkg/metrics"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.telegram.org"

// SendError 出站发送失败（HTTP 非 2xx、ok=false 或网络错误）
type SendError struct {
	StatusCode  int
	Description string
	Err         error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return "telegram send failed: " + e.Err.Error()
	}
	return fmt.Sprintf("telegram send failed (status %d): %s", e.StatusCode, e.Description)
}

func (e *SendError) Unwrap() error { return e.Err }

// Config Telegram Bot API 客户端配置
type Config struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

// Client Telegram Bot API 客户端，实现 channel.Transport
type Client struct {
	token   string
	baseURL string
	http    *resty.Client
}

var _ channel.Transport = (*Client)(nil)

// NewClient 创建客户端；BaseURL 为空时使用官方地址
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New()
	c.SetTimeout(timeout)
	c.SetRetryCount(0)
	c.SetHeader("Content-Type", "application/json")
	return &Client{token: cfg.BotToken, baseURL: strings.TrimRight(base, "/"), http: c}
}

// Name 实现 channel.Transport
func (c *Client) Name() string { return channel.Telegram }

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send 调用 sendMessage 发送到 conversationID 对应的 chat
func (c *Client) Send(ctx context.Context, conversationID, text string) error {
	err := c.send(ctx, conversationID, text)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	metrics.TransportSendTotal.WithLabelValues(channel.Telegram, status).Inc()
	return err
}

func (c *Client) send(ctx context.Context, conversationID, text string) error {
	if c.token == "" {
		return &SendError{Description: "bot token not configured"}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: conversationID, Text: text}).
		Post(c.baseURL + "/bot" + c.token + "/sendMessage")
	if err != nil {
		return &SendError{Err: err}
	}
	var body apiResponse
	_ = json.Unmarshal(resp.Body(), &body)
	if resp.IsError() || !body.OK {
		desc := body.Description
		if desc == "" {
			desc = strings.TrimSpace(resp.String())
		}
		return &SendError{StatusCode: resp.StatusCode(), Description: desc}
	}
	return nil
}
