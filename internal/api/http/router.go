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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"clawlink/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	// metrics 为 false 时不注册 /metrics
	metrics bool
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw, metrics: true}
}

// SetMetricsEnabled 设置是否暴露 Prometheus 指标端点
func (r *Router) SetMetricsEnabled(enabled bool) {
	r.metrics = enabled
}

// Build 创建 Hertz 服务并注册路由；opts 用于注入链路追踪等服务端选项
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	all := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.New(all...)
	h.Use(r.middleware.Recovery(), r.middleware.AccessLog(), r.middleware.CORS(), r.middleware.RateLimit())
	r.register(h)
	return h
}

func (r *Router) register(h *server.Hertz) {
	if r.metrics {
		h.GET("/metrics", r.handler.Metrics)
	}

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/models", r.handler.ListModels)
	api.GET("/channels", r.handler.ListChannels)
	api.POST("/dispatch", r.handler.Dispatch)

	// Telegram 回调：未绑定 Instance 与绑定 Instance 两种形式
	webhook := api.Group("/webhook")
	webhook.POST("/telegram", r.handler.TelegramWebhook)
	webhook.POST("/telegram/:agent_id", r.handler.TelegramWebhook)

	agents := api.Group("/agents")
	agents.POST("", r.handler.DeployAgent)
	agents.GET("", r.handler.ListAgents)
	agents.GET("/:id", r.handler.GetAgent)
	agents.GET("/:id/logs", r.handler.GetAgentLogs)
	agents.POST("/:id/start", r.handler.StartAgent)
	agents.POST("/:id/pause", r.handler.PauseAgent)
	agents.POST("/:id/resume", r.handler.ResumeAgent)
	agents.POST("/:id/model", r.handler.ReconfigureAgent)
	agents.DELETE("/:id", r.handler.TerminateAgent)
}
