// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server ServerConfig `yaml:"server"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path                string   `yaml:"path"`
	Debug               bool     `yaml:"debug"`
	ReadyTimeoutSeconds uint64   `yaml:"ready_timeout_seconds"`
	InputAllow          []string `yaml:"input_allow"`
	InputBlock          []string `yaml:"input_block"`
	OutputAllow         []string `yaml:"output_allow"`
	OutputBlock         []string `yaml:"output_block"`
}

// LogConfig 日志配置
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

const (
	defaultBind         = ":8080"
	defaultFFmpeg       = "ffmpeg"
	defaultReadyTimeout = 10
)

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: defaultBind},
		FFmpeg: FFmpegConfig{Path: defaultFFmpeg, ReadyTimeoutSeconds: defaultReadyTimeout},
	}
}

// ReadyTimeout as a duration
func (c *FFmpegConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutSeconds) * time.Second
}

// Load 从 YAML 文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = defaultBind
	}
	if cfg.FFmpeg.Path == "" {
		cfg.FFmpeg.Path = defaultFFmpeg
	}
	if cfg.FFmpeg.ReadyTimeoutSeconds == 0 {
		cfg.FFmpeg.ReadyTimeoutSeconds = defaultReadyTimeout
	}

	return cfg, nil
}
