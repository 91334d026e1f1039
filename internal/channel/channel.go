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

package channel

import (
	"context"

	"clawlink/pkg/config"
)

// 已知聊天通道
const (
	Telegram = "telegram"
	Discord  = "discord"
	WhatsApp = "whatsapp"
)

// Transport 出站发送能力；失败返回 error，由调用方记录，不回滚已完成的补全
type Transport interface {
	Name() string
	Send(ctx context.Context, conversationID, text string) error
}

// Info 通道展示信息；Enabled=false 的通道只展示不可部署
type Info struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Note    string `json:"note,omitempty"`
}

// Catalog 封闭的通道枚举
type Catalog struct {
	items []Info
}

// NewCatalog 按配置生成通道目录；Discord 与 WhatsApp 始终不可用
func NewCatalog(cfg config.ChannelsConfig) *Catalog {
	return &Catalog{items: []Info{
		{Key: Telegram, Name: "Telegram", Enabled: cfg.Telegram.Enabled},
		{Key: Discord, Name: "Discord", Enabled: false, Note: "coming soon"},
		{Key: WhatsApp, Name: "WhatsApp", Enabled: false, Note: "coming soon"},
	}}
}

// List 返回全部通道（含不可用的）
func (c *Catalog) List() []Info {
	out := make([]Info, len(c.items))
	copy(out, c.items)
	return out
}

// Enabled 通道是否可部署
func (c *Catalog) Enabled(key string) bool {
	for _, it := range c.items {
		if it.Key == key {
			return it.Enabled
		}
	}
	return false
}
