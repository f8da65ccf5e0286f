// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package process

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ProgressReport is one block of FFmpeg "-progress" output
type ProgressReport struct {
	Frame      int64   `json:"frame"`
	FPS        float64 `json:"fps"`
	StreamQ    float64 `json:"stream_q"`
	Bitrate    float64 `json:"bitrate_kbits"`
	TotalSize  int64   `json:"total_size"`
	OutTimeUs  int64   `json:"out_time_us"`
	OutTime    string  `json:"out_time"`
	DupFrames  int64   `json:"dup_frames"`
	DropFrames int64   `json:"drop_frames"`
	Speed      float64 `json:"speed"`
	Progress   string  `json:"progress"`
}

var progressPrefix = []byte("frame=")

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ParseProgress parses a stdout chunk into a ProgressReport. The chunk must
// start with "frame=" and carry every field, otherwise ok is false.
func ParseProgress(data []byte) (report ProgressReport, ok bool) {
	if !bytes.HasPrefix(data, progressPrefix) {
		return ProgressReport{}, false
	}

	fields := make(map[string]string)
	for _, line := range strings.Split(lineEndings.Replace(string(data)), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields[key] = value
	}

	p := fieldParser{fields: fields}
	report = ProgressReport{
		Frame:      p.int("frame"),
		FPS:        p.float("fps", ""),
		StreamQ:    p.float("stream_0_0_q", ""),
		Bitrate:    p.float("bitrate", "kbits/s"),
		TotalSize:  p.int("total_size"),
		OutTimeUs:  p.int("out_time_us"),
		OutTime:    p.str("out_time"),
		DupFrames:  p.int("dup_frames"),
		DropFrames: p.int("drop_frames"),
		Speed:      p.float("speed", "x"),
		Progress:   p.str("progress"),
	}
	if p.err != nil {
		return ProgressReport{}, false
	}
	return report, true
}

// fieldParser keeps the first lookup or conversion error
type fieldParser struct {
	fields map[string]string
	err    error
}

func (p *fieldParser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v, ok := p.fields[key]
	if !ok {
		p.err = fmt.Errorf("missing %s", key)
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (p *fieldParser) str(key string) string {
	v, _ := p.lookup(key)
	return v
}

func (p *fieldParser) int(key string) int64 {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	x, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return x
}

// float parses a floating point value, dropping unit (e.g. "kbits/s", "x")
func (p *fieldParser) float(key, unit string) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return 0
	}
	if unit != "" {
		v = strings.TrimSuffix(v, unit)
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return x
}
