// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package session

import "errors"

var (
	ErrNotFound             = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrInvalidConfig        = errors.New("invalid config: need at least one input and one output")
	ErrInvalidInputAddress  = errors.New("invalid input address")
	ErrInvalidOutputAddress = errors.New("invalid output address")
	ErrReadyTimeout         = errors.New("ffmpeg did not become ready in time")
)
