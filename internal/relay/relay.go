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

package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"clawlink/internal/agent/instance"
	"clawlink/internal/channel"
	"clawlink/internal/model/llm"
	"clawlink/pkg/log"
	"clawlink/pkg/metrics"
	"clawlink/pkg/tracing"
)

// DefaultPersona 固定的 persona 前言：按用户语言作答，简短有力
const DefaultPersona = "You are ClawLink, a professional global AI. Always detect the user's language. " +
	"If they speak English, reply in English. If they speak Hindi or Hinglish, reply in Hinglish. " +
	"Keep answers short and strong."

// KindTransportFailure 出站发送失败在活动日志中的分类
const KindTransportFailure = "TransportFailure"

// ErrRelayIgnored 入站事件缺少会话或文本，按无操作处理
var ErrRelayIgnored = errors.New("relay: event ignored")

// Outcome 单个入站事件的处理结果
type Outcome string

const (
	OutcomeRelayed          Outcome = "relayed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeProviderFailure  Outcome = "provider_failure"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Event 归一化的入站聊天事件；AgentID 为空表示未绑定 Instance
type Event struct {
	AgentID        string
	ConversationID string
	Text           string
}

// Dispatcher 补全调度能力（由 Gateway 提供）
type Dispatcher interface {
	Dispatch(ctx context.Context, req llm.CompletionRequest) llm.Result
}

// Instances 按 ID 查找 Instance Runtime
type Instances interface {
	Runtime(id string) (*instance.Runtime, bool)
}

// Config Relay 配置
type Config struct {
	// ModelKey 未绑定 Instance 的事件使用的 ModelKey
	ModelKey llm.ModelKey
	// Persona 为空时使用 DefaultPersona
	Persona string
	// UnauthorizedThreshold 连续 Unauthorized 次数达到该值时 Instance 进入 Errored；0 表示不触发
	UnauthorizedThreshold int
}

// Relay 将入站聊天事件转发到 Gateway，成功时把回复发回同一会话；失败对终端用户静默
type Relay struct {
	gateway   Dispatcher
	transport channel.Transport
	instances Instances
	cfg       Config
	logger    *log.Logger
	convLocks *keyedMutex

	mu           sync.Mutex
	unauthorized map[string]int
}

// New 创建 Relay；instances 可为 nil（仅处理未绑定事件）
func New(gateway Dispatcher, transport channel.Transport, instances Instances, cfg Config, logger *log.Logger) *Relay {
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Relay{
		gateway:      gateway,
		transport:    transport,
		instances:    instances,
		cfg:          cfg,
		logger:       logger,
		convLocks:    newKeyedMutex(),
		unauthorized: make(map[string]int),
	}
}

// Validate 事件必须带有会话标识与非空文本
func Validate(ev Event) error {
	if strings.TrimSpace(ev.ConversationID) == "" || strings.TrimSpace(ev.Text) == "" {
		return ErrRelayIgnored
	}
	return nil
}

// HandleInbound 处理一个入站事件。同一会话内按到达顺序串行处理，不同会话互不阻塞
func (r *Relay) HandleInbound(ctx context.Context, ev Event) Outcome {
	ctx, span := tracing.StartRelaySpan(ctx, r.transport.Name(), ev.ConversationID, ev.AgentID)
	outcome, kind := r.handle(ctx, ev)
	metrics.RelayEventsTotal.WithLabelValues(string(outcome)).Inc()
	tracing.EndWithOutcome(span, kind)
	return outcome
}

func (r *Relay) handle(ctx context.Context, ev Event) (Outcome, string) {
	if err := Validate(ev); err != nil {
		r.logger.Debug("忽略入站事件", "agent_id", ev.AgentID, "conversation_id", ev.ConversationID, "reason", "missing text or conversation")
		return OutcomeIgnored, ""
	}

	var rt *instance.Runtime
	modelKey := r.cfg.ModelKey
	if ev.AgentID != "" {
		found, ok := r.lookup(ev.AgentID)
		if !ok {
			r.logger.Debug("忽略入站事件", "agent_id", ev.AgentID, "reason", "instance not found")
			return OutcomeIgnored, ""
		}
		if state := found.State(); state != instance.StateRunning {
			r.logger.Debug("忽略入站事件", "agent_id", ev.AgentID, "reason", "instance not running", "state", state)
			return OutcomeIgnored, ""
		}
		rt = found
		modelKey = rt.ModelKey()
	}

	unlock := r.convLocks.Lock(r.transport.Name() + ":" + ev.ConversationID)
	defer unlock()

	result := r.gateway.Dispatch(ctx, llm.CompletionRequest{
		ModelKey:      modelKey,
		SystemPersona: r.cfg.Persona,
		UserText:      ev.Text,
	})
	if !result.OK {
		r.onProviderFailure(rt, ev, modelKey, result)
		return OutcomeProviderFailure, string(result.Kind)
	}
	r.resetUnauthorized(ev.AgentID)

	if err := r.transport.Send(ctx, ev.ConversationID, result.Text); err != nil {
		r.logger.Error("回复发送失败", "agent_id", ev.AgentID, "conversation_id", ev.ConversationID,
			"channel", r.transport.Name(), "error", err)
		if rt != nil {
			rt.RecordFailure(KindTransportFailure, fmt.Sprintf("Reply to %s could not be delivered via %s: %v", ev.ConversationID, r.transport.Name(), err))
		}
		return OutcomeTransportFailure, KindTransportFailure
	}
	if rt != nil && !rt.RecordMessage(fmt.Sprintf("Replied to conversation %s via %s.", ev.ConversationID, modelKey)) {
		r.logger.Info("实例在补全期间离开运行状态，回复不计入统计", "agent_id", ev.AgentID,
			"conversation_id", ev.ConversationID, "state", rt.State())
	}
	return OutcomeRelayed, ""
}

func (r *Relay) lookup(id string) (*instance.Runtime, bool) {
	if r.instances == nil {
		return nil, false
	}
	return r.instances.Runtime(id)
}

// onProviderFailure 记录失败分类；不向会话发送任何内容
func (r *Relay) onProviderFailure(rt *instance.Runtime, ev Event, modelKey llm.ModelKey, result llm.Result) {
	r.logger.Warn("补全失败，已静默", "agent_id", ev.AgentID, "conversation_id", ev.ConversationID,
		"model_key", modelKey, "kind", result.Kind, "message", result.Message)
	if rt == nil {
		return
	}
	rt.RecordFailure(string(result.Kind), fmt.Sprintf("Dispatch via %s failed: %s", modelKey, result.Message))

	if result.Kind != llm.FailureUnauthorized {
		r.resetUnauthorized(ev.AgentID)
		return
	}
	if n := r.bumpUnauthorized(ev.AgentID); r.cfg.UnauthorizedThreshold > 0 && n >= r.cfg.UnauthorizedThreshold {
		reason := fmt.Sprintf("%s rejected credentials %d times in a row", modelKey, n)
		if err := rt.Fail(string(llm.FailureUnauthorized), reason); err == nil {
			r.logger.Error("Instance 进入 Errored", "agent_id", ev.AgentID, "model_key", modelKey, "reason", reason)
		}
		r.resetUnauthorized(ev.AgentID)
	}
}

func (r *Relay) bumpUnauthorized(agentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unauthorized[agentID]++
	return r.unauthorized[agentID]
}

func (r *Relay) resetUnauthorized(agentID string) {
	if agentID == "" {
		return
	}
	r.mu.Lock()
	delete(r.unauthorized, agentID)
	r.mu.Unlock()
}
