// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package process

import (
	"bytes"
)

// maxTokenSize bounds a single stderr line or stdout progress block
const maxTokenSize = 1024 * 1024

var progressKey = []byte("progress=")

// scanLine is a bufio.SplitFunc that treats \r, \n and \r\n as line
// terminators and drops empty lines. FFmpeg rewrites its stats line with \r.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := skipLineEndings(data)

	if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
		return start + i + 1, data[start : start+i], nil
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// scanProgressBlock is a bufio.SplitFunc yielding one "-progress" block per
// token: every line up to and including the "progress=..." line.
func scanProgressBlock(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := skipLineEndings(data)

	for i := start; i < len(data); {
		j := bytes.IndexAny(data[i:], "\r\n")
		if j < 0 {
			break
		}
		end := i + j
		if bytes.HasPrefix(data[i:end], progressKey) {
			return end + 1, data[start : end+1], nil
		}
		i = end + 1
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func skipLineEndings(data []byte) int {
	start := 0
	for start < len(data) && (data[start] == '\n' || data[start] == '\r') {
		start++
	}
	return start
}
