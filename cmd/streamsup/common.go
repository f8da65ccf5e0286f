// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package main

import (
	"fmt"
	"os"

	"github.com/ZSC714725/streamsupervisor/internal/config"
	"github.com/ZSC714725/streamsupervisor/internal/ffmpeg"
	"github.com/ZSC714725/streamsupervisor/internal/logger"
)

// loadConfig reads --config and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if ffmpegBin != "" {
		cfg.FFmpeg.Path = ffmpegBin
	}
	if debug {
		cfg.Log.Debug = true
	}
	logger.SetDebug(cfg.Log.Debug)
	return cfg, nil
}

func newFFmpeg(cfg *config.FFmpegConfig) (ffmpeg.FFmpeg, error) {
	in, err := ffmpeg.NewValidator(cfg.InputAllow, cfg.InputBlock)
	if err != nil {
		return nil, fmt.Errorf("input validator: %w", err)
	}
	out, err := ffmpeg.NewValidator(cfg.OutputAllow, cfg.OutputBlock)
	if err != nil {
		return nil, fmt.Errorf("output validator: %w", err)
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:          cfg.Path,
		Debug:           cfg.Debug,
		ValidatorInput:  in,
		ValidatorOutput: out,
	})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg init: %w", err)
	}
	return ff, nil
}

func newLogger() logger.Logger {
	return logger.New(os.Stderr, "").WithPrefix("streamsup")
}
