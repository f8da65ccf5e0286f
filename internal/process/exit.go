// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package process

import (
	"fmt"
	"os"
	"syscall"
)

// killedExitCode is what FFmpeg returns when it was interrupted
const killedExitCode = 255

// Termination is how the process ended: either it exited with Code, or it
// was killed by Signal.
type Termination struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Exited returns a Termination for a normal exit
func Exited(code int) Termination {
	return Termination{Code: code}
}

// Killed returns a Termination for a process ended by a signal
func Killed(sig syscall.Signal) Termination {
	return Termination{Code: -1, Signaled: true, Signal: sig}
}

func terminationOf(state *os.ProcessState) Termination {
	if state == nil {
		return Killed(0)
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Killed(ws.Signal())
	}
	return Exited(state.ExitCode())
}

func (t Termination) String() string {
	code, signal := "null", "null"
	if !t.Signaled {
		code = fmt.Sprint(t.Code)
	} else if t.Signal != 0 {
		signal = t.Signal.String()
	}
	return fmt.Sprintf("code: %s and signal: %s", code, signal)
}

// Outcome is the meaning given to a process exit
type Outcome int

const (
	// OutcomeExpected is a clean exit after Stop
	OutcomeExpected Outcome = iota
	// OutcomeForced is a kill or interrupt we asked for
	OutcomeForced
	// OutcomeUnexpected is a kill nobody here asked for
	OutcomeUnexpected
	// OutcomeError is any other exit code
	OutcomeError
	// OutcomeSpawnFailed means the process never started
	OutcomeSpawnFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExpected:
		return "Expected"
	case OutcomeForced:
		return "Forced"
	case OutcomeUnexpected:
		return "Unexpected"
	case OutcomeError:
		return "Error"
	case OutcomeSpawnFailed:
		return "SpawnFailed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Classify maps a termination to an outcome. stopRequested means Stop armed
// the kill timer, killed means this side asked the process to go away.
func Classify(t Termination, stopRequested, killed bool) Outcome {
	switch {
	case stopRequested && !t.Signaled && t.Code == 0:
		return OutcomeExpected
	case t.Signaled || t.Code == killedExitCode:
		if killed {
			return OutcomeForced
		}
		return OutcomeUnexpected
	default:
		return OutcomeError
	}
}

// ExitError is handed to the ready callback when FFmpeg fails before the
// stream got going
type ExitError struct {
	Termination Termination
	Outcome     Outcome
}

func (e *ExitError) Error() string {
	return exitMessage(e.Termination, e.Outcome)
}

func exitMessage(t Termination, o Outcome) string {
	return fmt.Sprintf("FFmpeg exited with %s (%s)", t, o)
}
