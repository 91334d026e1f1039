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
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"clawlink/internal/agent/instance"
)

// ActivityPolicy 决定每次 tick 产生的活动及其是否计为已处理消息
type ActivityPolicy interface {
	Next() instance.Activity
}

// PolicyFunc 函数形式的 ActivityPolicy
type PolicyFunc func() instance.Activity

// Next 实现 ActivityPolicy
func (f PolicyFunc) Next() instance.Activity { return f() }

// messageSentPrefix 以此开头的活动计为已处理消息
const messageSentPrefix = "Message sent successfully"

var operationalActions = []string{
	"Scanning Telegram channels...",
	"Detected signal from User_%d",
	"Processing context (128k window)...",
	"Generating response via API...",
	messageSentPrefix + ". (24ms)",
	"Database synced.",
	"Checking wallet balance...",
	"Optimizing thread execution...",
}

// RandomPolicy 从固定的运行动作集合中均匀随机选取；PRNG 可按种子复现
type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPolicy 创建随机活动策略；seed 为 0 时按当前时间播种
func NewRandomPolicy(seed int64) *RandomPolicy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomPolicy{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))}
}

// Next 实现 ActivityPolicy
func (p *RandomPolicy) Next() instance.Activity {
	p.mu.Lock()
	action := operationalActions[p.rng.IntN(len(operationalActions))]
	if strings.Contains(action, "%d") {
		action = fmt.Sprintf(action, p.rng.IntN(9000))
	}
	p.mu.Unlock()
	return instance.Activity{
		Text:     action,
		Severity: instance.SeverityInfo,
		Message:  strings.HasPrefix(action, messageSentPrefix),
	}
}
