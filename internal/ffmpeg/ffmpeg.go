// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package ffmpeg

import (
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"github.com/ZSC714725/streamsupervisor/internal/logger"
	"github.com/ZSC714725/streamsupervisor/internal/process"
)

// FFmpeg hands out supervisors for one resolved FFmpeg binary
type FFmpeg interface {
	Binary() string
	Version() string
	NewSupervisor(config SupervisorConfig) (*process.Supervisor, error)
	ValidateInput(address string) bool
	ValidateOutput(address string) bool
}

// SupervisorConfig describes one streaming session
type SupervisorConfig struct {
	Label     string
	SessionID string
	Args      []string
	Logger    logger.Logger
	Debug     bool
	Delegate  process.Delegate

	OnReady      func(err error)
	OnProgress   func(report process.ProgressReport)
	OnFirstFrame func(latency time.Duration)
	OnExit       func(outcome process.Outcome)
}

// Config for FFmpeg
type Config struct {
	Binary          string
	Debug           bool
	ValidatorInput  Validator
	ValidatorOutput Validator
}

type ffmpeg struct {
	binary       string
	version      string
	debug        bool
	validatorIn  Validator
	validatorOut Validator
}

// New resolves the binary and checks that it really is FFmpeg
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	version, err := probeVersion(binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg: %w", err)
	}

	f := &ffmpeg{
		binary:       binary,
		version:      version,
		debug:        config.Debug,
		validatorIn:  config.ValidatorInput,
		validatorOut: config.ValidatorOutput,
	}

	if f.validatorIn == nil {
		f.validatorIn, _ = NewValidator(nil, nil)
	}
	if f.validatorOut == nil {
		f.validatorOut, _ = NewValidator(nil, nil)
	}

	return f, nil
}

func (f *ffmpeg) Binary() string {
	return f.binary
}

func (f *ffmpeg) Version() string {
	return f.version
}

func (f *ffmpeg) NewSupervisor(config SupervisorConfig) (*process.Supervisor, error) {
	log := config.Logger
	if log == nil {
		log = logger.Discard
	}

	return process.Start(process.Config{
		Label:        config.Label,
		SessionID:    config.SessionID,
		Binary:       f.binary,
		Args:         config.Args,
		Logger:       log.WithPrefix(config.Label),
		Debug:        f.debug || config.Debug,
		Delegate:     config.Delegate,
		OnReady:      config.OnReady,
		OnProgress:   config.OnProgress,
		OnFirstFrame: config.OnFirstFrame,
		OnExit:       config.OnExit,
	})
}

func (f *ffmpeg) ValidateInput(address string) bool {
	return f.validatorIn.IsValid(address)
}

func (f *ffmpeg) ValidateOutput(address string) bool {
	return f.validatorOut.IsValid(address)
}

var reVersion = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)

func probeVersion(binary string) (string, error) {
	out, err := exec.Command(binary, "-version").CombinedOutput()
	if err != nil {
		return "", err
	}
	version := parseVersion(out)
	if version == "" {
		return "", fmt.Errorf("can't parse ffmpeg version")
	}
	return version, nil
}

// parseVersion reads "ffmpeg version 6.1" style banners, padding to x.y.z
func parseVersion(data []byte) string {
	m := reVersion.FindSubmatch(data)
	if m == nil {
		return ""
	}
	version := string(m[1])
	if len(m[2]) == 0 {
		version += ".0"
	}
	return version
}
