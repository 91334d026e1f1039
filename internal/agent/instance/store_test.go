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
	"os"
	"testing"
	"time"

	"clawlink/internal/model/llm"
	apperrors "clawlink/pkg/errors"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore 各 Store 实现共享的契约测试
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	got, err := s.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	first := &AgentInstance{ID: "agent-1", Name: "Claw-Instance-agen", ModelKey: llm.ModelGemini, Channel: "telegram"}
	require.NoError(t, s.Create(ctx, first))
	assert.Equal(t, StateStopped, first.State)
	assert.False(t, first.CreatedAt.IsZero())
	assert.ErrorIs(t, s.Create(ctx, &AgentInstance{ID: "agent-1"}), apperrors.ErrConflict)
	assert.ErrorIs(t, s.Create(ctx, &AgentInstance{}), apperrors.ErrInvalidArg)

	second := &AgentInstance{ID: "agent-2", Name: "two", ModelKey: llm.ModelClaude, Channel: "telegram", CreatedAt: first.CreatedAt.Add(time.Second)}
	require.NoError(t, s.Create(ctx, second))

	first.State = StateRunning
	first.Metrics = Metrics{MessagesProcessed: 3, EarningsMicros: 150000}
	require.NoError(t, s.Update(ctx, first))
	got, err = s.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StateRunning, got.State)
	assert.Equal(t, llm.ModelGemini, got.ModelKey)
	assert.EqualValues(t, 3, got.Metrics.MessagesProcessed)

	// 迟到的旧快照不能回退统计
	stale := *first
	stale.State = StatePaused
	stale.Metrics = Metrics{MessagesProcessed: 1, EarningsMicros: 50000}
	require.NoError(t, s.Update(ctx, &stale))
	got, err = s.Get(ctx, "agent-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatePaused, got.State)
	assert.EqualValues(t, 3, got.Metrics.MessagesProcessed)
	assert.EqualValues(t, 150000, got.Metrics.EarningsMicros)
	first.State = StateRunning
	require.NoError(t, s.Update(ctx, first))

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "agent-2", list[0].ID)

	list, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Delete(ctx, "agent-1"))
	got, err = s.Get(ctx, "agent-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, s.Delete(ctx, "agent-1"))
}

func TestStoreMem(t *testing.T) {
	exerciseStore(t, NewStoreMem())
}

func TestStoreMem_UpdateMissingIsNoop(t *testing.T) {
	s := NewStoreMem()
	require.NoError(t, s.Update(context.Background(), &AgentInstance{ID: "ghost"}))
	got, err := s.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorePg(t *testing.T) {
	dsn := os.Getenv("TEST_INSTANCE_STORE_DSN")
	if dsn == "" {
		t.Skip("TEST_INSTANCE_STORE_DSN not set, skipping Postgres instance store tests")
	}
	ctx := context.Background()
	s, err := NewStorePg(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	_, _ = s.pool.Exec(ctx, `DELETE FROM agent_instances`)
	exerciseStore(t, s)
}

func TestStoreRedis(t *testing.T) {
	addr := os.Getenv("TEST_INSTANCE_STORE_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_INSTANCE_STORE_REDIS_ADDR not set, skipping Redis instance store tests")
	}
	ctx := context.Background()
	s, err := NewStoreRedis(ctx, &redis.Options{Addr: addr, DB: 15})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.client.FlushDB(ctx).Err())
	exerciseStore(t, s)
}
