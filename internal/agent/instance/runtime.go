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
	"fmt"
	"sync"
	"time"

	"clawlink/internal/model/llm"
	"clawlink/pkg/metrics"
)

// Activity 一次 tick 产生的活动；Message 为 true 时计为一条已处理消息
type Activity struct {
	Text     string
	Severity Severity
	Message  bool
}

// RuntimeOptions Runtime 构造参数
type RuntimeOptions struct {
	// LogCapacity 活动日志容量，上限 MaxLogCapacity
	LogCapacity int
	// MessageIncrementMicros 每条已处理消息的收益增量（百万分之一单位）
	MessageIncrementMicros int64
	// Clock 时间源，测试中可替换
	Clock func() time.Time
	// OnTransition 状态变化后回调（已释放实例锁），用于持久化；回调串行执行，晚于新快照到达的旧快照被丢弃
	OnTransition func(AgentInstance)
}

// Runtime 单个 Agent Instance 的状态机、活动日志与用量统计；所有命令在实例级锁内串行执行
type Runtime struct {
	mu        sync.Mutex
	// seq 在 mu 下递增；persistMu 串行化 onChange，跳过比 persisted 更旧的快照
	seq       uint64
	persistMu sync.Mutex
	persisted uint64
	inst      AgentInstance
	log       *ActivityLog
	increment int64
	clock     func() time.Time
	onChange  func(AgentInstance)
	discarded bool
}

// NewRuntime 以给定记录创建 Runtime；State 为空时为 Stopped
func NewRuntime(inst AgentInstance, opts RuntimeOptions) *Runtime {
	if inst.State == "" {
		inst.State = StateStopped
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	increment := opts.MessageIncrementMicros
	if increment < 0 {
		increment = 0
	}
	metrics.InstancesByState.WithLabelValues(string(inst.State)).Inc()
	return &Runtime{
		inst:      inst,
		log:       NewActivityLog(opts.LogCapacity),
		increment: increment,
		clock:     clock,
		onChange:  opts.OnTransition,
	}
}

// ID 返回 Instance ID
func (r *Runtime) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inst.ID
}

// State 返回当前状态
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inst.State
}

// ModelKey 返回当前绑定的 ModelKey
func (r *Runtime) ModelKey() llm.ModelKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inst.ModelKey
}

// Start Stopped → Running；写入初始化与就绪两条记录
func (r *Runtime) Start() error {
	return r.transition(func() error {
		if r.inst.State != StateStopped {
			return &TransitionError{From: r.inst.State, Command: CommandStart}
		}
		r.appendLocked(fmt.Sprintf("Initializing %s on %s via %s...", r.inst.Name, r.inst.Channel, r.inst.ModelKey), SeverityInfo, "")
		r.setStateLocked(StateRunning)
		r.appendLocked("System Status: ONLINE", SeverityInfo, "")
		return nil
	})
}

// Pause Running → Paused；tick 停止，统计冻结
func (r *Runtime) Pause() error {
	return r.transition(func() error {
		if r.inst.State != StateRunning {
			return &TransitionError{From: r.inst.State, Command: CommandPause}
		}
		r.setStateLocked(StatePaused)
		r.appendLocked("INSTANCE PAUSED.", SeverityInfo, "")
		return nil
	})
}

// Resume Paused → Running
func (r *Runtime) Resume() error {
	return r.transition(func() error {
		if r.inst.State != StatePaused {
			return &TransitionError{From: r.inst.State, Command: CommandResume}
		}
		r.setStateLocked(StateRunning)
		r.appendLocked("INSTANCE RESUMED.", SeverityInfo, "")
		return nil
	})
}

// Fail Running → Errored；kind 为导致失败的分类，写入一条 error 记录
func (r *Runtime) Fail(kind, reason string) error {
	return r.transition(func() error {
		if r.inst.State != StateRunning {
			return &TransitionError{From: r.inst.State, Command: CommandFail}
		}
		r.setStateLocked(StateErrored)
		r.appendLocked("INSTANCE HALTED: "+reason, SeverityError, kind)
		return nil
	})
}

// Reconfigure 更换 ModelKey；Errored 状态下同时回到 Stopped，等待重新 Start。
// 模型替换总会写入活动日志。
func (r *Runtime) Reconfigure(key llm.ModelKey) error {
	return r.transition(func() error {
		prev := r.inst.ModelKey
		r.inst.ModelKey = key
		r.inst.UpdatedAt = r.clock()
		r.appendLocked(fmt.Sprintf("Model switched from %s to %s.", prev, key), SeverityInfo, "")
		if r.inst.State == StateErrored {
			r.setStateLocked(StateStopped)
			r.appendLocked("Error cleared. Instance stopped, awaiting start.", SeverityInfo, "")
		}
		return nil
	})
}

// Tick 仅在 Running 时生效：通过 next 取得一条活动写入日志，Message 活动累加统计。
// 返回是否产生了记录；next 只在 Running 时被调用。
func (r *Runtime) Tick(now time.Time, next func() Activity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discarded || r.inst.State != StateRunning {
		return false
	}
	act := next()
	severity := act.Severity
	if severity == "" {
		severity = SeverityInfo
	}
	r.log.Append(Entry{Timestamp: now, Text: act.Text, Severity: severity})
	metrics.InstanceTicksTotal.Inc()
	if act.Message {
		r.countMessageLocked("tick")
	}
	return true
}

// RecordMessage 记录一条真实处理完成的消息（Relay 成功投递后调用）。
// 仅在 Running 时计入统计；其他状态下只写入记录，统计保持冻结。返回是否计入
func (r *Runtime) RecordMessage(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discarded {
		return false
	}
	if r.inst.State != StateRunning {
		r.appendLocked(fmt.Sprintf("%s (not counted: instance %s)", text, r.inst.State), SeverityWarn, "")
		return false
	}
	r.appendLocked(text, SeverityInfo, "")
	r.countMessageLocked("relay")
	return true
}

// RecordFailure 记录一条 error 记录，kind 为失败分类
func (r *Runtime) RecordFailure(kind, message string) {
	r.Record(message, SeverityError, kind)
}

// Record 追加任意记录
func (r *Runtime) Record(text string, severity Severity, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discarded {
		return
	}
	r.appendLocked(text, severity, kind)
}

// Snapshot 当前状态的只读副本
type Snapshot struct {
	Instance AgentInstance `json:"instance"`
	Log      []Entry       `json:"log"`
}

// Snapshot 返回记录与日志的副本
func (r *Runtime) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{Instance: r.inst, Log: r.log.Entries()}
}

// Instance 返回记录副本
func (r *Runtime) Instance() AgentInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inst
}

// Discard 终止：丢弃后所有命令返回 ErrInstanceNotFound，tick 与记录不再生效
func (r *Runtime) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.discarded {
		return
	}
	r.discarded = true
	metrics.InstancesByState.WithLabelValues(string(r.inst.State)).Dec()
}

func (r *Runtime) transition(apply func() error) error {
	r.mu.Lock()
	if r.discarded {
		r.mu.Unlock()
		return ErrInstanceNotFound
	}
	if err := apply(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.seq++
	seq, snapshot := r.seq, r.inst
	r.mu.Unlock()
	if r.onChange == nil {
		return nil
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if seq <= r.persisted {
		return nil
	}
	r.persisted = seq
	r.onChange(snapshot)
	return nil
}

func (r *Runtime) setStateLocked(s State) {
	metrics.InstancesByState.WithLabelValues(string(r.inst.State)).Dec()
	metrics.InstancesByState.WithLabelValues(string(s)).Inc()
	r.inst.State = s
	r.inst.UpdatedAt = r.clock()
}

func (r *Runtime) appendLocked(text string, severity Severity, kind string) {
	r.log.Append(Entry{Timestamp: r.clock(), Text: text, Severity: severity, Kind: kind})
}

func (r *Runtime) countMessageLocked(source string) {
	r.inst.Metrics.MessagesProcessed++
	r.inst.Metrics.EarningsMicros += r.increment
	metrics.InstanceMessagesTotal.WithLabelValues(source).Inc()
}
