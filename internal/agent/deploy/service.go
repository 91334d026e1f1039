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

package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clawlink/internal/agent/instance"
	"clawlink/internal/agent/scheduler"
	"clawlink/internal/model/llm"
	"clawlink/pkg/log"

	"github.com/google/uuid"
)

// ErrInvalidModel 部署或重新配置时 ModelKey 未注册
var ErrInvalidModel = errors.New("invalid model")

// ErrUnsupportedChannel 通道不在已启用的集合中
var ErrUnsupportedChannel = errors.New("unsupported channel")

// ModelRegistry 已注册的 ModelKey 集合（由 Gateway 提供）
type ModelRegistry interface {
	Has(key llm.ModelKey) bool
}

// ChannelSet 可部署的通道集合
type ChannelSet interface {
	Enabled(key string) bool
}

// Request 部署请求
type Request struct {
	Name     string `json:"name,omitempty"`
	ModelKey string `json:"model_key"`
	Channel  string `json:"channel"`
}

// Options Service 构造参数
type Options struct {
	LogCapacity            int
	MessageIncrementMicros int64
	Clock                  func() time.Time
	// PersistTimeout 状态变化后写回存储的超时
	PersistTimeout time.Duration
}

// Service 管理 Instance 的创建、生命周期命令与终止；运行时状态在内存中，记录经 Store 持久化
type Service struct {
	store    instance.Store
	models   ModelRegistry
	channels ChannelSet
	ticks    *scheduler.TickScheduler
	logger   *log.Logger
	opts     Options

	mu       sync.RWMutex
	runtimes map[string]*instance.Runtime
}

// NewService 创建部署服务
func NewService(store instance.Store, models ModelRegistry, channels ChannelSet, ticks *scheduler.TickScheduler, logger *log.Logger, opts Options) *Service {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		models:   models,
		channels: channels,
		ticks:    ticks,
		logger:   logger,
		opts:     opts,
		runtimes: make(map[string]*instance.Runtime),
	}
}

// Validate 校验部署请求；ModelKey 先于通道检查
func (s *Service) Validate(req Request) error {
	key := llm.ModelKey(strings.TrimSpace(req.ModelKey))
	if key == "" || !s.models.Has(key) {
		return fmt.Errorf("%w: %q", ErrInvalidModel, req.ModelKey)
	}
	if !s.channels.Enabled(strings.TrimSpace(req.Channel)) {
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, req.Channel)
	}
	return nil
}

// Deploy 创建 Instance 并立即进入 Running
func (s *Service) Deploy(ctx context.Context, req Request) (instance.Snapshot, error) {
	if err := s.Validate(req); err != nil {
		return instance.Snapshot{}, err
	}
	id := uuid.New().String()
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = instance.DefaultName(id)
	}
	rec := &instance.AgentInstance{
		ID:       id,
		Name:     name,
		ModelKey: llm.ModelKey(strings.TrimSpace(req.ModelKey)),
		Channel:  strings.TrimSpace(req.Channel),
		State:    instance.StateStopped,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return instance.Snapshot{}, fmt.Errorf("create instance: %w", err)
	}

	rt := s.newRuntime(*rec)
	if err := rt.Start(); err != nil {
		rt.Discard()
		return instance.Snapshot{}, err
	}
	s.track(rt)
	s.logger.Info("Instance 已部署", "agent_id", id, "model_key", rec.ModelKey, "channel", rec.Channel)
	return rt.Snapshot(), nil
}

// Restore 启动时从存储重建 Runtime；状态保持存储中的值
func (s *Service) Restore(ctx context.Context) (int, error) {
	recs, err := s.store.List(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list instances: %w", err)
	}
	for _, rec := range recs {
		rt := s.newRuntime(*rec)
		rt.Record("Runtime restored after restart.", instance.SeverityInfo, "")
		if !s.models.Has(rec.ModelKey) {
			rt.Record(fmt.Sprintf("Model %s is not registered; dispatches will fail until reconfigured.", rec.ModelKey), instance.SeverityWarn, string(llm.FailureUnknownModel))
		}
		s.track(rt)
	}
	return len(recs), nil
}

// Runtime 查找运行中的 Instance
func (s *Service) Runtime(id string) (*instance.Runtime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.runtimes[id]
	return rt, ok
}

// Get 返回 Instance 快照
func (s *Service) Get(id string) (instance.Snapshot, error) {
	rt, ok := s.Runtime(id)
	if !ok {
		return instance.Snapshot{}, instance.ErrInstanceNotFound
	}
	return rt.Snapshot(), nil
}

// List 按创建时间倒序返回全部 Instance 记录
func (s *Service) List() []instance.AgentInstance {
	s.mu.RLock()
	out := make([]instance.AgentInstance, 0, len(s.runtimes))
	for _, rt := range s.runtimes {
		out = append(out, rt.Instance())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Start Stopped → Running
func (s *Service) Start(id string) (instance.Snapshot, error) {
	return s.command(id, (*instance.Runtime).Start)
}

// Pause Running → Paused
func (s *Service) Pause(id string) (instance.Snapshot, error) {
	return s.command(id, (*instance.Runtime).Pause)
}

// Resume Paused → Running
func (s *Service) Resume(id string) (instance.Snapshot, error) {
	return s.command(id, (*instance.Runtime).Resume)
}

// Reconfigure 更换 ModelKey；新 key 必须已注册
func (s *Service) Reconfigure(id string, modelKey string) (instance.Snapshot, error) {
	key := llm.ModelKey(strings.TrimSpace(modelKey))
	if key == "" || !s.models.Has(key) {
		return instance.Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidModel, modelKey)
	}
	return s.command(id, func(rt *instance.Runtime) error { return rt.Reconfigure(key) })
}

// Terminate 终止并删除 Instance，不可恢复
func (s *Service) Terminate(ctx context.Context, id string) error {
	s.mu.Lock()
	rt, ok := s.runtimes[id]
	if ok {
		delete(s.runtimes, id)
	}
	s.mu.Unlock()
	if !ok {
		return instance.ErrInstanceNotFound
	}
	s.ticks.Unregister(id)
	rt.Discard()
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	s.logger.Info("Instance 已终止", "agent_id", id)
	return nil
}

// Flush 将所有 Instance 的当前记录（含统计）写回存储，关闭前调用
func (s *Service) Flush(ctx context.Context) error {
	var errs []error
	for _, rec := range s.List() {
		rec := rec
		if err := s.store.Update(ctx, &rec); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", rec.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) command(id string, fn func(*instance.Runtime) error) (instance.Snapshot, error) {
	rt, ok := s.Runtime(id)
	if !ok {
		return instance.Snapshot{}, instance.ErrInstanceNotFound
	}
	if err := fn(rt); err != nil {
		return instance.Snapshot{}, err
	}
	return rt.Snapshot(), nil
}

func (s *Service) newRuntime(rec instance.AgentInstance) *instance.Runtime {
	return instance.NewRuntime(rec, instance.RuntimeOptions{
		LogCapacity:            s.opts.LogCapacity,
		MessageIncrementMicros: s.opts.MessageIncrementMicros,
		Clock:                  s.opts.Clock,
		OnTransition:           s.persist,
	})
}

func (s *Service) track(rt *instance.Runtime) {
	s.mu.Lock()
	s.runtimes[rt.ID()] = rt
	s.mu.Unlock()
	s.ticks.Register(rt)
}

// persist 状态变化写回存储；失败只记日志，内存状态为准
func (s *Service) persist(rec instance.AgentInstance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.PersistTimeout)
	defer cancel()
	if err := s.store.Update(ctx, &rec); err != nil {
		s.logger.Error("Instance 状态写回失败", "agent_id", rec.ID, "state", rec.State, "error", err)
	}
}
