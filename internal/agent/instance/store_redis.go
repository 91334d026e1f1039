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
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "clawlink/pkg/errors"
)

const (
	redisKeyPrefix = "clawlink:instance:"
	redisIndexKey  = "clawlink:instances"
)

// StoreRedis Redis 实现的 Store：每条记录一个 JSON 值，另以 sorted set 按创建时间索引
type StoreRedis struct {
	client *redis.Client
}

// NewStoreRedis 连接 Redis 并校验可用
func NewStoreRedis(ctx context.Context, opts *redis.Options) (*StoreRedis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &StoreRedis{client: client}, nil
}

// NewStoreRedisWithClient 复用已有客户端
func NewStoreRedisWithClient(client *redis.Client) *StoreRedis {
	return &StoreRedis{client: client}
}

// Close 关闭客户端
func (s *StoreRedis) Close() error {
	return s.client.Close()
}

func (s *StoreRedis) Get(ctx context.Context, id string) (*AgentInstance, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out AgentInstance
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *StoreRedis) Create(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidArg, "instance id is required")
	}
	stampNew(instance)
	raw, err := json.Marshal(instance)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+instance.ID, raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Wrapf(apperrors.ErrConflict, "instance %s", instance.ID)
	}
	return s.client.ZAdd(ctx, redisIndexKey, redis.Z{
		Score:  float64(instance.CreatedAt.UnixNano()),
		Member: instance.ID,
	}).Err()
}

// redisUpdateRetries WATCH 冲突时的重试次数
const redisUpdateRetries = 5

// Update 全量覆盖，统计只增不减（WATCH 事务内与旧值合并）；记录不存在时忽略
func (s *StoreRedis) Update(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return nil
	}
	key := redisKeyPrefix + instance.ID
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var prev AgentInstance
		if err := json.Unmarshal(raw, &prev); err != nil {
			return err
		}
		cp := *instance
		cp.Metrics = cp.Metrics.atLeast(prev.Metrics)
		cp.UpdatedAt = time.Now()
		next, err := json.Marshal(&cp)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, key, next, 0)
			return nil
		})
		return err
	}
	var err error
	for i := 0; i < redisUpdateRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *StoreRedis) List(ctx context.Context, limit int) ([]*AgentInstance, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*AgentInstance, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var inst AgentInstance
		if err := json.Unmarshal([]byte(str), &inst); err != nil {
			return nil, err
		}
		out = append(out, &inst)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *StoreRedis) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+id)
	pipe.ZRem(ctx, redisIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}
