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
	"errors"
	"fmt"
	"time"

	"clawlink/internal/model/llm"
)

// State Instance 生命周期状态
type State string

const (
	StateStopped State = "Stopped"
	StateRunning State = "Running"
	StatePaused  State = "Paused"
	StateErrored State = "Errored"
)

// States 全部生命周期状态（稳定顺序）
func States() []State {
	return []State{StateStopped, StateRunning, StatePaused, StateErrored}
}

// Command 生命周期命令
type Command string

const (
	CommandStart       Command = "start"
	CommandPause       Command = "pause"
	CommandResume      Command = "resume"
	CommandFail        Command = "fail"
	CommandReconfigure Command = "reconfigure"
)

// ErrInvalidTransition 非法生命周期命令
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInstanceNotFound Instance 不存在或已终止
var ErrInstanceNotFound = errors.New("agent instance not found")

// TransitionError 携带被拒绝的命令与当时的状态
type TransitionError struct {
	From    State
	Command Command
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s an instance in state %s", e.Command, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Metrics 用量统计；两项均单调不减。收益以百万分之一为单位存储，避免浮点累加误差
type Metrics struct {
	MessagesProcessed int64 `json:"messages_processed"`
	EarningsMicros    int64 `json:"earnings_micros"`
}

// atLeast 逐项取较大值；存储层用它保证统计不回退
func (m Metrics) atLeast(prev Metrics) Metrics {
	return Metrics{
		MessagesProcessed: max(m.MessagesProcessed, prev.MessagesProcessed),
		EarningsMicros:    max(m.EarningsMicros, prev.EarningsMicros),
	}
}

// Earnings 以浮点表示的累计收益
func (m Metrics) Earnings() float64 {
	return float64(m.EarningsMicros) / 1e6
}

// MicrosFromAmount 将配置中的金额转换为百万分之一单位
func MicrosFromAmount(amount float64) int64 {
	if amount <= 0 {
		return 0
	}
	return int64(amount*1e6 + 0.5)
}

// AgentInstance 持久化的 Agent Instance 记录；活动日志只在运行时内存中保留
type AgentInstance struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	ModelKey  llm.ModelKey `json:"model_key"`
	Channel   string       `json:"channel"`
	State     State        `json:"state"`
	Metrics   Metrics      `json:"metrics"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DefaultName 未指定名称时的默认显示名
func DefaultName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return "Claw-Instance-" + short
}
