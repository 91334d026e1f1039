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
	"errors"
	"time"

	"clawlink/internal/model/llm"
	apperrors "clawlink/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation Postgres 唯一约束冲突的 SQLSTATE
const pgUniqueViolation = "23505"

const pgSchema = `CREATE TABLE IF NOT EXISTS agent_instances (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	model_key        TEXT NOT NULL,
	channel          TEXT NOT NULL,
	state            TEXT NOT NULL,
	messages_processed BIGINT NOT NULL DEFAULT 0,
	earnings_micros  BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`

const pgColumns = `id, name, model_key, channel, state, messages_processed, earnings_micros, created_at, updated_at`

// StorePg Postgres 实现的 Store
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的 Store，并确保表存在
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

func scanInstance(row pgx.Row) (*AgentInstance, error) {
	var out AgentInstance
	var modelKey, state string
	err := row.Scan(&out.ID, &out.Name, &modelKey, &out.Channel, &state,
		&out.Metrics.MessagesProcessed, &out.Metrics.EarningsMicros, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	out.ModelKey = llm.ModelKey(modelKey)
	out.State = State(state)
	return &out, nil
}

func (s *StorePg) Get(ctx context.Context, id string) (*AgentInstance, error) {
	out, err := scanInstance(s.pool.QueryRow(ctx,
		`SELECT `+pgColumns+` FROM agent_instances WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *StorePg) Create(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidArg, "instance id is required")
	}
	stampNew(instance)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_instances (`+pgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		instance.ID, instance.Name, string(instance.ModelKey), instance.Channel, string(instance.State),
		instance.Metrics.MessagesProcessed, instance.Metrics.EarningsMicros, instance.CreatedAt, instance.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperrors.Wrapf(apperrors.ErrConflict, "instance %s", instance.ID)
	}
	return err
}

// Update 全量更新；统计列取 GREATEST 以保持单调
func (s *StorePg) Update(ctx context.Context, instance *AgentInstance) error {
	if instance == nil || instance.ID == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE agent_instances SET name = $1, model_key = $2, channel = $3, state = $4,
		 messages_processed = GREATEST(messages_processed, $5),
		 earnings_micros = GREATEST(earnings_micros, $6),
		 updated_at = $7 WHERE id = $8`,
		instance.Name, string(instance.ModelKey), instance.Channel, string(instance.State),
		instance.Metrics.MessagesProcessed, instance.Metrics.EarningsMicros, time.Now(), instance.ID)
	return err
}

func (s *StorePg) List(ctx context.Context, limit int) ([]*AgentInstance, error) {
	q := `SELECT ` + pgColumns + ` FROM agent_instances ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AgentInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *StorePg) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM agent_instances WHERE id = $1`, id)
	return err
}
