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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"

	"clawlink/pkg/log"
)

// Middleware 中间件管理器
type Middleware struct {
	logger  *log.Logger
	limiter *rate.Limiter
}

// Option 中间件选项
type Option func(*Middleware)

// WithRateLimit 全局请求速率上限（每秒）；rps<=0 表示不限
func WithRateLimit(rps float64) Option {
	return func(m *Middleware) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			m.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(logger *log.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	m := &Middleware{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Telegram-Bot-Api-Secret-Token")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 全局速率限制；未配置时直接放行
func (m *Middleware) RateLimit() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if m.limiter != nil && !m.limiter.Allow() {
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{
				"error": "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next(ctx)
	}
}

// AccessLog 访问日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		m.logger.Debug("http request",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"client_ip", c.ClientIP(),
			"latency", time.Since(start).String(),
		)
	}
}

// Recovery 恢复中间件
func (m *Middleware) Recovery() app.HandlerFunc {
	return recovery.Recovery()
}
