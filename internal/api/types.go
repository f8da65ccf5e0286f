// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package api

// SessionConfigIO is API input/output
type SessionConfigIO struct {
	ID      string   `json:"id"`
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// SessionRequest opens a session
type SessionRequest struct {
	ID      string            `json:"id"`
	Label   string            `json:"label"`
	Input   []SessionConfigIO `json:"input" binding:"required"`
	Output  []SessionConfigIO `json:"output" binding:"required"`
	Options []string          `json:"options"`
	Debug   bool              `json:"debug"`
}

// Session in API responses
type Session struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	CreatedAt int64         `json:"created_at"`
	State     *SessionState `json:"state"`
}

// SessionState for API
type SessionState struct {
	PID           int       `json:"pid"`
	Started       bool      `json:"started"`
	StopRequested bool      `json:"stop_requested"`
	Exited        bool      `json:"exited"`
	Outcome       string    `json:"outcome,omitempty"`
	Runtime       int64     `json:"runtime_seconds"`
	Memory        uint64    `json:"memory_bytes"`
	CPU           float64   `json:"cpu_usage"`
	Progress      *Progress `json:"progress"`
	Command       []string  `json:"command"`
}

// Progress is the latest FFmpeg progress block
type Progress struct {
	Frame     int64   `json:"frame"`
	FPS       float64 `json:"fps"`
	Quantizer float64 `json:"q"`
	Bitrate   float64 `json:"bitrate_kbits"`
	Size      int64   `json:"size_bytes"`
	OutTimeUs int64   `json:"out_time_us"`
	OutTime   string  `json:"out_time"`
	Dup       int64   `json:"dup"`
	Drop      int64   `json:"drop"`
	Speed     float64 `json:"speed"`
	Status    string  `json:"status"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
