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

package secrets

import (
	"context"
	"fmt"
	"sync"
)

// memoryStore 进程内凭证表；键按 envName 归一化，与 env provider 的 secret:// 引用写法一致
type memoryStore struct {
	mu    sync.RWMutex
	creds map[string]string
}

// NewMemoryStore 创建内存凭证存储，可用 seed 预置提供商密钥与 bot token（本地开发与测试）
func NewMemoryStore(seed map[string]string) Store {
	m := &memoryStore{creds: make(map[string]string, len(seed))}
	for k, v := range seed {
		m.creds[envName(k)] = v
	}
	return m
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	value, ok := m.creds[envName(key)]
	m.mu.RUnlock()
	if !ok || value == "" {
		return "", fmt.Errorf("credential not configured: %s", key)
	}
	return value, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return fmt.Errorf("empty credential key")
	}
	m.mu.Lock()
	m.creds[envName(key)] = value
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.creds, envName(key))
	m.mu.Unlock()
	return nil
}

