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

// Package redaction 在记录入站载荷前对 JSON 字段脱敏。
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Mode 脱敏方式
type Mode string

const (
	ModeMask   Mode = "mask"   // 替换为 "***"
	ModeHash   Mode = "hash"   // 替换为带 salt 的 SHA256 摘要，同值同摘要便于关联
	ModeRemove Mode = "remove" // 删除字段
)

// Rule 单个字段规则；Path 以 "." 分隔，如 "message.chat.id"
type Rule struct {
	Path string
	Mode Mode
}

// Redactor 按载荷类别应用规则
type Redactor struct {
	rules map[string][]Rule
	salt  string
}

// New 创建 Redactor；salt 用于 hash 模式
func New(salt string) *Redactor {
	return &Redactor{rules: make(map[string][]Rule), salt: salt}
}

// With 为某类载荷追加规则，返回自身以便链式配置
func (r *Redactor) With(kind string, rules ...Rule) *Redactor {
	r.rules[kind] = append(r.rules[kind], rules...)
	return r
}

// TelegramUpdates Telegram 更新的默认规则：文本与会话 ID 取摘要，发送者信息删除
func TelegramUpdates(salt string) *Redactor {
	return New(salt).With(KindTelegramUpdate,
		Rule{Path: "message.text", Mode: ModeHash},
		Rule{Path: "message.chat.id", Mode: ModeHash},
		Rule{Path: "message.chat.username", Mode: ModeRemove},
		Rule{Path: "message.chat.first_name", Mode: ModeRemove},
		Rule{Path: "message.chat.last_name", Mode: ModeRemove},
		Rule{Path: "message.from", Mode: ModeRemove},
	)
}

// KindTelegramUpdate Telegram webhook 载荷类别
const KindTelegramUpdate = "telegram_update"

// Redact 返回脱敏后的 JSON；没有规则时原样返回。非 JSON 输入返回错误与原始数据
func (r *Redactor) Redact(kind string, data []byte) ([]byte, error) {
	rules := r.rules[kind]
	if len(rules) == 0 || len(data) == 0 {
		return data, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, fmt.Errorf("redact %s: %w", kind, err)
	}
	for _, rule := range rules {
		r.apply(obj, rule)
	}
	return json.Marshal(obj)
}

func (r *Redactor) apply(obj map[string]any, rule Rule) {
	parts := strings.Split(rule.Path, ".")
	current := obj
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	last := parts[len(parts)-1]
	value, ok := current[last]
	if !ok {
		return
	}
	switch rule.Mode {
	case ModeMask:
		current[last] = "***"
	case ModeHash:
		current[last] = r.hash(fmt.Sprintf("%v", value))
	case ModeRemove:
		delete(current, last)
	}
}

func (r *Redactor) hash(value string) string {
	h := sha256.New()
	h.Write([]byte(value))
	h.Write([]byte(r.salt))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))[:16]
}
