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

package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"clawlink/internal/agent/instance"
)

// TickScheduler 在独立循环中按固定间隔驱动所有已注册 Runtime 的 tick；
// tick 的效果由 Runtime 决定，非 Running 的实例自然跳过
type TickScheduler struct {
	mu       sync.RWMutex
	runtimes map[string]*instance.Runtime
	policy   ActivityPolicy
	interval time.Duration
	clock    func() time.Time
}

// TickSchedulerConfig tick 调度器配置
type TickSchedulerConfig struct {
	// Interval tick 间隔；未设置时为 2s
	Interval time.Duration
	// Clock 时间源；测试中可替换
	Clock func() time.Time
}

// NewTickScheduler 创建 tick 调度器
func NewTickScheduler(policy ActivityPolicy, cfg TickSchedulerConfig) *TickScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TickScheduler{
		runtimes: make(map[string]*instance.Runtime),
		policy:   policy,
		interval: interval,
		clock:    clock,
	}
}

// Register 注册 Runtime；同 ID 重复注册时替换
func (s *TickScheduler) Register(rt *instance.Runtime) {
	s.mu.Lock()
	s.runtimes[rt.ID()] = rt
	s.mu.Unlock()
}

// Unregister 移除 Runtime
func (s *TickScheduler) Unregister(id string) {
	s.mu.Lock()
	delete(s.runtimes, id)
	s.mu.Unlock()
}

// Len 已注册 Runtime 数
func (s *TickScheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runtimes)
}

// TickOnce 以 now 对所有 Runtime 执行一次 tick（按 ID 排序），返回产生记录的实例数
func (s *TickScheduler) TickOnce(now time.Time) int {
	s.mu.RLock()
	ids := make([]string, 0, len(s.runtimes))
	for id := range s.runtimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rts := make([]*instance.Runtime, len(ids))
	for i, id := range ids {
		rts[i] = s.runtimes[id]
	}
	s.mu.RUnlock()

	ticked := 0
	for _, rt := range rts {
		if rt.Tick(now, s.policy.Next) {
			ticked++
		}
	}
	return ticked
}

// Run 周期执行 TickOnce，直到 ctx 取消
func (s *TickScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.TickOnce(s.clock())
		}
	}
}
