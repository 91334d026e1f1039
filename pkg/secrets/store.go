// Copyright 2026 fanjia1024
// Credential lookup for provider adapters and chat transports

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// RefPrefix 配置中引用 secret 的前缀，如 api_key: "secret://gemini_api_key"
const RefPrefix = "secret://"

// Store 凭证存储接口
type Store interface {
	// Get 获取 secret 值；不存在时返回错误
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error
}

// Config Secret Store 配置
type Config struct {
	Provider string            // env | memory | vault
	Vault    VaultConfig       // Provider=vault 时使用
	Seed     map[string]string // Provider=memory 时的初始凭证
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(config.Seed), nil
	case "env", "":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析凭证字段：secret://name 从 store 读取，其余按字面量返回。
// 读取失败时返回空串与错误，调用方据此把缺失凭证视为 Unauthorized。
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	if !strings.HasPrefix(value, RefPrefix) {
		return value, nil
	}
	key := strings.TrimPrefix(value, RefPrefix)
	if key == "" {
		return "", fmt.Errorf("empty secret reference")
	}
	if store == nil {
		return "", fmt.Errorf("secret store not configured for %s", key)
	}
	return store.Get(ctx, key)
}
