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

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger 简单封装，供 internal 使用
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// Config 日志配置（可与 config 包对接）
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ParseLevel 将配置中的级别字符串转为 slog.Level，未知值按 info 处理
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Output 返回日志输出目标；File 为空时为 stdout。调用方负责关闭返回的 Closer（可能为 nil）
func Output(cfg *Config) (io.Writer, io.Closer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	return f, f, nil
}

// NewLogger 根据配置创建 Logger，cfg 可为 nil 使用默认
func NewLogger(cfg *Config) (*Logger, error) {
	level := slog.LevelInfo
	if cfg != nil {
		level = ParseLevel(cfg.Level)
	}
	out, closer, err := Output(cfg)
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: slog.New(newHandler(out, cfg, level)), closer: closer}, nil
}

// NewWithWriter 输出到指定 writer，测试中用于断言日志内容
func NewWithWriter(w io.Writer, cfg *Config) *Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = ParseLevel(cfg.Level)
	}
	return &Logger{Logger: slog.New(newHandler(w, cfg, level))}
}

// Nop 丢弃所有日志
func Nop() *Logger {
	return NewWithWriter(io.Discard, nil)
}

// Close 关闭文件输出（若有）
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func newHandler(w io.Writer, cfg *Config, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
