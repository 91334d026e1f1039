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

package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"clawlink/internal/agent/instance"
	"clawlink/pkg/config"
	"clawlink/pkg/log"
	"clawlink/pkg/secrets"
)

// Bootstrap 统一初始化：日志、凭证存储与 Instance 存储
type Bootstrap struct {
	Config        *config.Config
	Logger        *log.Logger
	Secrets       secrets.Store
	InstanceStore instance.Store

	closeStore func() error
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
		Seed: cfg.Secrets.Seed,
	})
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("初始化凭证存储失败: %w", err)
	}

	store, closeStore, err := NewInstanceStore(ctx, cfg.DeploymentStore)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("初始化 Instance 存储失败: %w", err)
	}
	logger.Info("Instance 存储已就绪", "type", storeType(cfg.DeploymentStore))

	return &Bootstrap{
		Config:        cfg,
		Logger:        logger,
		Secrets:       secretStore,
		InstanceStore: store,
		closeStore:    closeStore,
	}, nil
}

// NewInstanceStore 按 deployment_store.type 创建存储；返回的 close 在进程退出时调用
func NewInstanceStore(ctx context.Context, cfg config.DeploymentStoreConfig) (instance.Store, func() error, error) {
	switch storeType(cfg) {
	case "postgres":
		s, err := instance.NewStorePg(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case "redis":
		s, err := instance.NewStoreRedis(ctx, &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return instance.NewStoreMem(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("未知 deployment_store.type: %q", cfg.Type)
	}
}

func storeType(cfg config.DeploymentStoreConfig) string {
	if cfg.Type == "" {
		return "memory"
	}
	return cfg.Type
}

// Close 释放存储连接与日志文件
func (b *Bootstrap) Close() error {
	var err error
	if b.closeStore != nil {
		err = b.closeStore()
	}
	if cerr := b.Logger.Close(); err == nil {
		err = cerr
	}
	return err
}
