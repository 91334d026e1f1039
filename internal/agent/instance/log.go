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

package instance

import (
	"time"
)

// Severity 日志级别
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Entry 单条活动记录；Kind 记录失败分类（如 RateLimited、TransportFailure），普通记录为空
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Severity  Severity  `json:"severity"`
	Kind      string    `json:"kind,omitempty"`
}

// ActivityLog 固定容量的环形日志，满后淘汰最旧记录；非并发安全，由 Runtime 加锁访问
type ActivityLog struct {
	buf   []Entry
	start int
	size  int
}

// NewActivityLog 创建活动日志；capacity 不在 1..MaxLogCapacity 内时取 MaxLogCapacity
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 || capacity > MaxLogCapacity {
		capacity = MaxLogCapacity
	}
	return &ActivityLog{buf: make([]Entry, capacity)}
}

// MaxLogCapacity 活动日志容量上限
const MaxLogCapacity = 50

// Append 追加一条记录
func (l *ActivityLog) Append(e Entry) {
	if l.size < len(l.buf) {
		l.buf[(l.start+l.size)%len(l.buf)] = e
		l.size++
		return
	}
	l.buf[l.start] = e
	l.start = (l.start + 1) % len(l.buf)
}

// Entries 按时间顺序（旧 → 新）返回副本
func (l *ActivityLog) Entries() []Entry {
	out := make([]Entry, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Len 当前记录数
func (l *ActivityLog) Len() int { return l.size }

// Cap 容量
func (l *ActivityLog) Cap() int { return len(l.buf) }
