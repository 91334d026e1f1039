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
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"clawlink/internal/agent/deploy"
	"clawlink/internal/agent/instance"
)

// instanceView Instance 的 API 表示
type instanceView struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ModelKey          string    `json:"model_key"`
	Channel           string    `json:"channel"`
	State             string    `json:"state"`
	MessagesProcessed int64     `json:"messages_processed"`
	AccruedEarnings   float64   `json:"accrued_earnings"`
	EarningsMicros    int64     `json:"earnings_micros"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type instanceDetail struct {
	instanceView
	Log []instance.Entry `json:"log"`
}

func toView(inst instance.AgentInstance) instanceView {
	return instanceView{
		ID:                inst.ID,
		Name:              inst.Name,
		ModelKey:          string(inst.ModelKey),
		Channel:           inst.Channel,
		State:             string(inst.State),
		MessagesProcessed: inst.Metrics.MessagesProcessed,
		AccruedEarnings:   inst.Metrics.Earnings(),
		EarningsMicros:    inst.Metrics.EarningsMicros,
		CreatedAt:         inst.CreatedAt,
		UpdatedAt:         inst.UpdatedAt,
	}
}

func toDetail(snap instance.Snapshot) instanceDetail {
	return instanceDetail{instanceView: toView(snap.Instance), Log: snap.Log}
}

// DeployAgent 部署新 Instance
// POST /api/agents
func (h *Handler) DeployAgent(ctx context.Context, c *app.RequestContext) {
	var req deploy.Request
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}
	snap, err := h.deployments.Deploy(ctx, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, toDetail(snap))
}

// ListAgents 列出全部 Instance
// GET /api/agents
func (h *Handler) ListAgents(ctx context.Context, c *app.RequestContext) {
	list := h.deployments.List()
	out := make([]instanceView, 0, len(list))
	for _, inst := range list {
		out = append(out, toView(inst))
	}
	c.JSON(consts.StatusOK, utils.H{"agents": out, "total": len(out)})
}

// GetAgent Instance 详情（含活动日志）
// GET /api/agents/:id
func (h *Handler) GetAgent(ctx context.Context, c *app.RequestContext) {
	snap, err := h.deployments.Get(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, toDetail(snap))
}

// GetAgentLogs 活动日志（旧 → 新）
// GET /api/agents/:id/logs
func (h *Handler) GetAgentLogs(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	snap, err := h.deployments.Get(id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"agent_id": id, "entries": snap.Log})
}

// StartAgent POST /api/agents/:id/start
func (h *Handler) StartAgent(ctx context.Context, c *app.RequestContext) {
	h.respondSnapshot(c)(h.deployments.Start(c.Param("id")))
}

// PauseAgent POST /api/agents/:id/pause
func (h *Handler) PauseAgent(ctx context.Context, c *app.RequestContext) {
	h.respondSnapshot(c)(h.deployments.Pause(c.Param("id")))
}

// ResumeAgent POST /api/agents/:id/resume
func (h *Handler) ResumeAgent(ctx context.Context, c *app.RequestContext) {
	h.respondSnapshot(c)(h.deployments.Resume(c.Param("id")))
}

type reconfigureRequest struct {
	ModelKey string `json:"model_key"`
}

// ReconfigureAgent 更换模型；Errored 的 Instance 同时回到 Stopped
// POST /api/agents/:id/model
func (h *Handler) ReconfigureAgent(ctx context.Context, c *app.RequestContext) {
	var req reconfigureRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
		return
	}
	h.respondSnapshot(c)(h.deployments.Reconfigure(c.Param("id"), req.ModelKey))
}

// TerminateAgent 终止并删除 Instance
// DELETE /api/agents/:id
func (h *Handler) TerminateAgent(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if err := h.deployments.Terminate(ctx, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"id": id, "terminated": true})
}

func (h *Handler) respondSnapshot(c *app.RequestContext) func(instance.Snapshot, error) {
	return func(snap instance.Snapshot, err error) {
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(consts.StatusOK, toDetail(snap))
	}
}
