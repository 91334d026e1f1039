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
	"log/slog"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"clawlink/internal/channel/telegram"
	"clawlink/internal/relay"
	"clawlink/pkg/redaction"
)

// TelegramWebhook Telegram 回调入口。除 secret 不匹配外总是应答 200 {"ok":true}，
// 非消息更新与补全失败都不会让 Telegram 重投
// POST /api/webhook/telegram[/:agent_id]
func (h *Handler) TelegramWebhook(ctx context.Context, c *app.RequestContext) {
	if !telegram.VerifySecret(h.webhookSecret, string(c.GetHeader(telegram.SecretHeader))) {
		c.JSON(consts.StatusUnauthorized, utils.H{"ok": false})
		return
	}
	body := c.Request.Body()
	h.logPayload(ctx, body)
	update, err := telegram.ParseUpdate(body)
	if err != nil {
		h.logger.Debug("无法解析 Telegram 更新", "error", err)
		c.JSON(consts.StatusOK, utils.H{"ok": true})
		return
	}
	if h.relay == nil {
		h.logger.Debug("Telegram 通道未启用，忽略更新", "update_id", update.UpdateID)
		c.JSON(consts.StatusOK, utils.H{"ok": true})
		return
	}
	h.relay.HandleInbound(ctx, relay.Event{
		AgentID:        c.Param("agent_id"),
		ConversationID: update.ConversationID(),
		Text:           update.Text(),
	})
	c.JSON(consts.StatusOK, utils.H{"ok": true})
}

// logPayload debug 级别下记录脱敏后的原始更新
func (h *Handler) logPayload(ctx context.Context, body []byte) {
	if h.redactor == nil || !h.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	redacted, err := h.redactor.Redact(redaction.KindTelegramUpdate, body)
	if err != nil {
		h.logger.Debug("Telegram 更新无法脱敏，跳过记录", "error", err)
		return
	}
	h.logger.Debug("收到 Telegram 更新", "payload", string(redacted))
}
