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
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store；key 统一转为大写，secret://gemini_api_key 读取 GEMINI_API_KEY
func NewEnvStore() Store {
	return &envStore{}
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(envName(key))
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", envName(key))
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(envName(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(envName(key))
}
