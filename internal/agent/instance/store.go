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

import "context"

// Store 持久化 AgentInstance 记录；Get 不存在时返回 nil, nil
type Store interface {
	Get(ctx context.Context, id string) (*AgentInstance, error)
	Create(ctx context.Context, instance *AgentInstance) error
	Update(ctx context.Context, instance *AgentInstance) error
	List(ctx context.Context, limit int) ([]*AgentInstance, error)
	// Delete 终止时删除记录；不存在不报错
	Delete(ctx context.Context, id string) error
}
