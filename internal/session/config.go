// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package session

// ConfigIO is one input or output of a session
type ConfigIO struct {
	ID      string   `json:"id"`
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// Config for a streaming session
type Config struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Input   []ConfigIO `json:"input"`
	Output  []ConfigIO `json:"output"`
	Options []string   `json:"options"`
	Debug   bool       `json:"debug"`
}

// CreateCommand builds FFmpeg args from config. Progress always goes to
// stdout as key=value blocks, log lines carry a [level] tag unless the
// options pick their own log level.
func (c *Config) CreateCommand() []string {
	cmd := []string{"-hide_banner"}
	if !hasOption(c.Options, "-loglevel") && !hasOption(c.Options, "-v") {
		cmd = append(cmd, "-loglevel", "level+info")
	}
	if !hasOption(c.Options, "-progress") {
		cmd = append(cmd, "-progress", "pipe:1")
	}
	cmd = append(cmd, c.Options...)

	for _, in := range c.Input {
		cmd = append(cmd, in.Options...)
		cmd = append(cmd, "-i", in.Address)
	}
	for _, out := range c.Output {
		cmd = append(cmd, out.Options...)
		cmd = append(cmd, out.Address)
	}
	return cmd
}

func hasOption(options []string, name string) bool {
	for _, o := range options {
		if o == name {
			return true
		}
	}
	return false
}
