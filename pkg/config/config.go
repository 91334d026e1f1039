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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API             APIConfig             `mapstructure:"api"`
	Gateway         GatewayConfig         `mapstructure:"gateway"`
	Model           ModelConfig           `mapstructure:"model"`
	Relay           RelayConfig           `mapstructure:"relay"`
	Channels        ChannelsConfig        `mapstructure:"channels"`
	Agent           AgentConfig           `mapstructure:"agent"`
	DeploymentStore DeploymentStoreConfig `mapstructure:"deployment_store"`
	Secrets         SecretsConfig         `mapstructure:"secrets"`
	Log             LogConfig             `mapstructure:"log"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port int        `mapstructure:"port"`
	Host string     `mapstructure:"host"`
	Grpc GrpcConfig `mapstructure:"grpc"`
	// RateLimit HTTP 全局请求上限（每秒），0 表示不限
	RateLimit float64 `mapstructure:"rate_limit"`
}

// GrpcConfig gRPC 服务配置（仅健康检查）
type GrpcConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// GatewayConfig Dispatch Gateway 配置
type GatewayConfig struct {
	CompletionTimeout string `mapstructure:"completion_timeout"` // 单次 dispatch 超时，如 "30s"
}

// ModelConfig 模型提供商配置
type ModelConfig struct {
	Providers  map[string]ProviderConfig  `mapstructure:"providers"`   // key 为 ModelKey（openai | claude | gemini | qwen）
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"` // key 为 ModelKey
}

// ProviderConfig 单个提供商配置
type ProviderConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	APIKey      string  `mapstructure:"api_key"` // 字面量、${ENV} 或 secret://name
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"` // 默认模型/版本，请求未覆盖时使用
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// RateLimitConfig 单个提供商的限流配置
type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// RelayConfig Webhook Relay 配置
type RelayConfig struct {
	ModelKey              string `mapstructure:"model_key"`              // 未绑定 Instance 的入站事件使用的 ModelKey
	Persona               string `mapstructure:"persona"`                // 为空时使用内置 persona
	UnauthorizedThreshold int    `mapstructure:"unauthorized_threshold"` // 连续 Unauthorized 达到该值时 Instance 进入 Errored
}

// ChannelsConfig 聊天通道配置；discord/whatsapp 仅展示，不可启用
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  ChannelToggle  `mapstructure:"discord"`
	WhatsApp ChannelToggle  `mapstructure:"whatsapp"`
}

// TelegramConfig Telegram Bot 配置
type TelegramConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	BotToken      string `mapstructure:"bot_token"`
	BaseURL       string `mapstructure:"base_url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ChannelToggle 仅含开关的通道配置
type ChannelToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

// AgentConfig Agent Instance 运行时配置
type AgentConfig struct {
	TickInterval     string  `mapstructure:"tick_interval"`     // 周期 tick 间隔，如 "2s"
	MessageIncrement float64 `mapstructure:"message_increment"` // 每条已处理消息的收益增量
	LogCapacity      int     `mapstructure:"log_capacity"`      // 活动日志容量，上限 50
	Seed             int64   `mapstructure:"seed"`              // 活动策略随机种子，0 表示按时间
}

// DeploymentStoreConfig Instance 存储配置
type DeploymentStoreConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres | redis
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串
	Addr     string `mapstructure:"addr"` // Redis 地址
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecretsConfig 凭证存储配置
type SecretsConfig struct {
	Provider string            `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig       `mapstructure:"vault"`
	Seed     map[string]string `mapstructure:"seed"` // provider=memory 时预置的凭证
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
	Exporter       string `mapstructure:"exporter"` // grpc | http
}

// MaxLogCapacity 活动日志容量上限
const MaxLogCapacity = 50

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.grpc.port", 9090)
	v.SetDefault("gateway.completion_timeout", "30s")
	v.SetDefault("relay.model_key", "gemini")
	v.SetDefault("relay.unauthorized_threshold", 3)
	v.SetDefault("agent.tick_interval", "2s")
	v.SetDefault("agent.message_increment", 0.05)
	v.SetDefault("agent.log_capacity", MaxLogCapacity)
	v.SetDefault("deployment_store.type", "memory")
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.tracing.exporter", "grpc")
	v.SetDefault("monitoring.tracing.service_name", "clawlink-api")
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadAPIConfig 加载 API 配置；CLAWLINK_CONFIG 可覆盖默认路径 configs/api.yaml
func LoadAPIConfig() (*Config, error) {
	path := os.Getenv("CLAWLINK_CONFIG")
	if path == "" {
		path = "configs/api.yaml"
	}
	return LoadConfig(path)
}

// replaceEnvVars 替换配置中 ${ENV} 形式的凭证
func replaceEnvVars(config *Config) {
	for key, pc := range config.Model.Providers {
		pc.APIKey = expandEnv(pc.APIKey)
		config.Model.Providers[key] = pc
	}
	config.Channels.Telegram.BotToken = expandEnv(config.Channels.Telegram.BotToken)
	config.Channels.Telegram.WebhookSecret = expandEnv(config.Channels.Telegram.WebhookSecret)
	config.Secrets.Vault.Token = expandEnv(config.Secrets.Vault.Token)
	config.DeploymentStore.DSN = expandEnv(config.DeploymentStore.DSN)
	config.DeploymentStore.Password = expandEnv(config.DeploymentStore.Password)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return s
	}
	envVar := strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return ""
}

// Validate 校验时长、存储类型与日志容量
func (c *Config) Validate() error {
	if _, err := parsePositiveDuration(c.Gateway.CompletionTimeout); err != nil {
		return fmt.Errorf("gateway.completion_timeout: %w", err)
	}
	if _, err := parsePositiveDuration(c.Agent.TickInterval); err != nil {
		return fmt.Errorf("agent.tick_interval: %w", err)
	}
	if c.Agent.MessageIncrement < 0 {
		return fmt.Errorf("agent.message_increment 不能为负数: %v", c.Agent.MessageIncrement)
	}
	if c.Agent.LogCapacity <= 0 || c.Agent.LogCapacity > MaxLogCapacity {
		return fmt.Errorf("agent.log_capacity 应在 1..%d 之间: %d", MaxLogCapacity, c.Agent.LogCapacity)
	}
	if !knownModelKey(c.Relay.ModelKey) {
		return fmt.Errorf("relay.model_key 未知: %q", c.Relay.ModelKey)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit 不能为负数: %v", c.API.RateLimit)
	}
	if c.Relay.UnauthorizedThreshold < 0 {
		return fmt.Errorf("relay.unauthorized_threshold 不能为负数: %d", c.Relay.UnauthorizedThreshold)
	}
	switch c.DeploymentStore.Type {
	case "memory", "":
	case "postgres":
		if c.DeploymentStore.DSN == "" {
			return fmt.Errorf("deployment_store.dsn 在 type=postgres 时必填")
		}
	case "redis":
		if c.DeploymentStore.Addr == "" {
			return fmt.Errorf("deployment_store.addr 在 type=redis 时必填")
		}
	default:
		return fmt.Errorf("未知 deployment_store.type: %q", c.DeploymentStore.Type)
	}
	return nil
}

func knownModelKey(key string) bool {
	switch key {
	case "openai", "claude", "gemini", "qwen":
		return true
	}
	return false
}

// CompletionTimeout 返回解析后的 dispatch 超时
func (c *Config) CompletionTimeout() time.Duration {
	d, _ := parsePositiveDuration(c.Gateway.CompletionTimeout)
	return d
}

// TickInterval 返回解析后的 tick 间隔
func (c *Config) TickInterval() time.Duration {
	d, _ := parsePositiveDuration(c.Agent.TickInterval)
	return d
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("时长必须为正: %s", s)
	}
	return d, nil
}
