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
	"crypto/subtle"
	"encoding/json"
	"strconv"
)

// SecretHeader Telegram 回调携带 webhook secret 的请求头
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Update Telegram webhook 推送的更新；只解析 Relay 需要的字段
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message 文本消息
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text"`
}

// Chat 会话
type Chat struct {
	ID int64 `json:"id"`
}

// User 发送者
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// ParseUpdate 解析 webhook 请求体
func ParseUpdate(body []byte) (Update, error) {
	var u Update
	err := json.Unmarshal(body, &u)
	return u, err
}

// ConversationID 会话标识；非消息更新返回空串
func (u Update) ConversationID() string {
	if u.Message == nil || u.Message.Chat.ID == 0 {
		return ""
	}
	return strconv.FormatInt(u.Message.Chat.ID, 10)
}

// Text 消息文本；非文本更新返回空串
func (u Update) Text() string {
	if u.Message == nil {
		return ""
	}
	return u.Message.Text
}

// VerifySecret 校验 webhook secret；未配置 expected 时总是通过
func VerifySecret(expected, got string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}
