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
	"context"
	"sort"
	"sync"
	"time"

	apperrors "clawlink/pkg/errors"
)

// StoreMem 内存实现的 Store
type StoreMem struct {
	mu   sync.RWMutex
	byID map[string]*AgentInstance
}

// NewStoreMem 创建内存版 Store
func NewStoreMem() *StoreMem {
	return &StoreMem{byID: make(map[string]*AgentInstance)}
}

// Get 按 id 查询；不存在返回 nil, nil
func (s *StoreMem) Get(ctx context.Context, id string) (*AgentInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := s.byID[id]
	if p == nil {
		return nil, nil
	}
	out := *p
	return &out, nil
}

// Create 创建记录；ID 必填，重复 ID 返回错误
func (s *StoreMem) Create(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidArg, "instance id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[instance.ID]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "instance %s", instance.ID)
	}
	stampNew(instance)
	cp := *instance
	s.byID[instance.ID] = &cp
	return nil
}

// Update 全量更新，统计只增不减；记录不存在时忽略
func (s *StoreMem) Update(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.byID[instance.ID]
	if !ok {
		return nil
	}
	cp := *instance
	cp.Metrics = cp.Metrics.atLeast(prev.Metrics)
	cp.UpdatedAt = time.Now()
	s.byID[instance.ID] = &cp
	return nil
}

// List 按创建时间倒序列出，最多 limit 条（limit<=0 不限制）
func (s *StoreMem) List(ctx context.Context, limit int) ([]*AgentInstance, error) {
	s.mu.RLock()
	out := make([]*AgentInstance, 0, len(s.byID))
	for _, p := range s.byID {
		cp := *p
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete 删除记录
func (s *StoreMem) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

// stampNew 补齐新记录的时间戳与初始状态
func stampNew(instance *AgentInstance) {
	now := time.Now()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	if instance.UpdatedAt.IsZero() {
		instance.UpdatedAt = now
	}
	if instance.State == "" {
		instance.State = StateStopped
	}
}
