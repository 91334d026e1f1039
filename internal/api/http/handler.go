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
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"clawlink/internal/agent/deploy"
	"clawlink/internal/agent/instance"
	"clawlink/internal/channel"
	"clawlink/internal/gateway"
	"clawlink/internal/model/llm"
	"clawlink/internal/relay"
	apperrors "clawlink/pkg/errors"
	"clawlink/pkg/log"
	"clawlink/pkg/metrics"
	"clawlink/pkg/redaction"
)

// Handler HTTP 处理器
type Handler struct {
	gateway       *gateway.Gateway
	deployments   *deploy.Service
	relay         *relay.Relay
	channels      *channel.Catalog
	webhookSecret string
	redactor      *redaction.Redactor
	logger        *log.Logger
}

// Deps Handler 依赖；Relay 为 nil 时 webhook 只应答不处理
type Deps struct {
	Gateway       *gateway.Gateway
	Deployments   *deploy.Service
	Relay         *relay.Relay
	Channels      *channel.Catalog
	WebhookSecret string
	// Redactor 非空且日志级别为 debug 时记录脱敏后的 webhook 载荷
	Redactor *redaction.Redactor
	Logger   *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		gateway:       deps.Gateway,
		deployments:   deps.Deployments,
		relay:         deps.Relay,
		channels:      deps.Channels,
		webhookSecret: deps.WebhookSecret,
		redactor:      deps.Redactor,
		logger:        logger,
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "clawlink-api",
	})
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// ListModels 已注册的 ModelKey
// GET /api/models
func (h *Handler) ListModels(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"models": h.gateway.Keys()})
}

// ListChannels 通道目录（含未开放的）
// GET /api/channels
func (h *Handler) ListChannels(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"channels": h.channels.List()})
}

// Dispatch 直接调用 Gateway，返回归一化结果；失败结果也以 200 返回
// POST /api/dispatch
func (h *Handler) Dispatch(ctx context.Context, c *app.RequestContext) {
	var req llm.CompletionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}
	if req.ModelKey == "" || req.UserText == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "model_key and user_text are required"})
		return
	}
	c.JSON(consts.StatusOK, h.gateway.Dispatch(ctx, req))
}

// writeError 按错误类别映射 HTTP 状态码
func (h *Handler) writeError(c *app.RequestContext, err error) {
	status, code := consts.StatusInternalServerError, "Internal"
	switch {
	case errors.Is(err, instance.ErrInstanceNotFound):
		status, code = consts.StatusNotFound, "NotFound"
	case errors.Is(err, instance.ErrInvalidTransition):
		status, code = consts.StatusConflict, "InvalidTransition"
	case errors.Is(err, deploy.ErrInvalidModel):
		status, code = consts.StatusBadRequest, "InvalidModel"
	case errors.Is(err, deploy.ErrUnsupportedChannel):
		status, code = consts.StatusBadRequest, "UnsupportedChannel"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = consts.StatusConflict, "Conflict"
	case errors.Is(err, apperrors.ErrInvalidArg):
		status, code = consts.StatusBadRequest, "InvalidArgument"
	}
	if status == consts.StatusInternalServerError {
		h.logger.Error("请求处理失败", "path", string(c.Path()), "error", err)
	}
	c.JSON(status, utils.H{"error": err.Error(), "code": code})
}
