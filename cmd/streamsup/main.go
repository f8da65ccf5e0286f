// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	ffmpegBin  string
	debug      bool
)

var root = &cobra.Command{
	Use:          "streamsup",
	Short:        "Supervise FFmpeg streaming sessions",
	SilenceUsage: true,
}

func main() {
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&ffmpegBin, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(serveCmd(), runCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
