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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9000
  host: "127.0.0.1"
gateway:
  completion_timeout: "5s"
model:
  providers:
    gemini:
      enabled: true
      api_key: "literal-key"
      model: "gemini-1.5-pro"
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.API.Port)
	assert.Equal(t, "127.0.0.1", cfg.API.Host)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.CompletionTimeout())
	assert.Equal(t, "literal-key", cfg.Model.Providers["gemini"].APIKey)
	assert.Equal(t, "gemini-1.5-pro", cfg.Model.Providers["gemini"].Model)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "api:\n  host: \"0.0.0.0\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 30*time.Second, cfg.CompletionTimeout())
	assert.Equal(t, 2*time.Second, cfg.TickInterval())
	assert.Equal(t, "gemini", cfg.Relay.ModelKey)
	assert.Equal(t, 3, cfg.Relay.UnauthorizedThreshold)
	assert.InDelta(t, 0.05, cfg.Agent.MessageIncrement, 1e-9)
	assert.Equal(t, MaxLogCapacity, cfg.Agent.LogCapacity)
	assert.Equal(t, "memory", cfg.DeploymentStore.Type)
}

func TestLoadConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("CLAWLINK_TEST_GEMINI_KEY", "from-env")
	t.Setenv("CLAWLINK_TEST_BOT_TOKEN", "123:abc")
	path := writeConfig(t, `
model:
  providers:
    gemini:
      api_key: "${CLAWLINK_TEST_GEMINI_KEY}"
    claude:
      api_key: "${CLAWLINK_TEST_UNSET_KEY}"
channels:
  telegram:
    enabled: true
    bot_token: "${CLAWLINK_TEST_BOT_TOKEN}"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model.Providers["gemini"].APIKey)
	assert.Equal(t, "", cfg.Model.Providers["claude"].APIKey)
	assert.Equal(t, "123:abc", cfg.Channels.Telegram.BotToken)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad timeout":       "gateway:\n  completion_timeout: \"soon\"\n",
		"zero tick":         "agent:\n  tick_interval: \"0s\"\n",
		"capacity too big":  "agent:\n  log_capacity: 51\n",
		"unknown store":     "deployment_store:\n  type: \"mongo\"\n",
		"postgres no dsn":   "deployment_store:\n  type: \"postgres\"\n",
		"unknown relay key": "relay:\n  model_key: \"llama\"\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
