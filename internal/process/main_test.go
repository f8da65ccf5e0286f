// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package process

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// helperEnv selects how the test binary behaves when started as "ffmpeg"
const helperEnv = "SUPERVISOR_TEST_MAIN"

func progressBlock(frame int) string {
	return strings.Replace(wellFormedBlock, "frame=10", fmt.Sprintf("frame=%d", frame), 1)
}

// waitForQuit exits 0 once "q" arrives on stdin, like FFmpeg does
func waitForQuit() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "q" {
			os.Exit(0)
		}
	}
	os.Exit(0)
}

// Invoked by `go test`, switch between helper and running tests based on env
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "progress":
		fmt.Fprintln(os.Stderr, "[info] ffmpeg version test")
		fmt.Print(progressBlock(0))
		fmt.Print(progressBlock(10))
		fmt.Print(progressBlock(20))
		waitForQuit()

	case "stderr":
		fmt.Fprintln(os.Stderr, "[info] hello from ffmpeg")
		fmt.Fprintln(os.Stderr, "[rtsp @ 0x1234] [error] bad thing happened")
		waitForQuit()

	// ignores "q" so the kill timer has to fire
	case "stall":
		fmt.Fprintln(os.Stderr, "[info] stalling")
		fmt.Print(progressBlock(10))
		time.Sleep(10 * time.Second)
		os.Exit(0)

	case "fail-early":
		os.Exit(2)

	case "fail-late":
		fmt.Fprintln(os.Stderr, "[error] Conversion failed!")
		fmt.Print(progressBlock(10))
		time.Sleep(100 * time.Millisecond)
		os.Exit(2)

	case "interrupted":
		fmt.Fprintln(os.Stderr, "[info] Exiting normally, received signal 2.")
		os.Exit(255)

	default:
		os.Exit(m.Run())
	}
}
