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

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Address    string // 如 http://vault:8200
	Token      string
	PathPrefix string // KV 路径前缀，默认 "secret"
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
}

// NewVaultStore 创建 Vault secret store；启动时做一次健康检查
func NewVaultStore(config VaultConfig) (Store, error) {
	if config.Address == "" {
		config.Address = "http://localhost:8200"
	}

	cfg := vault.DefaultConfig()
	cfg.Address = config.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("failed to connect to vault: %w", err)
	}

	prefix := "secret"
	if config.PathPrefix != "" {
		prefix = config.PathPrefix
	}
	return &vaultStore{client: client, pathPrefix: prefix}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.buildPath(key))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}
	// KV v2 把字段包在 data 下
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		if data, ok := nested["value"].(string); ok {
			return data, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.buildPath(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.buildPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}
	return nil
}

func (v *vaultStore) buildPath(key string) string {
	return fmt.Sprintf("%s/%s", v.pathPrefix, key)
}
