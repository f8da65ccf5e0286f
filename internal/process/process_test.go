// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: fmt.Sprintf(format, args...)})
}

func (l *recordingLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *recordingLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *recordingLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }
func (l *recordingLogger) ForceDebug(format string, args ...interface{}) {
	l.add("debug", format, args...)
}

// count returns how many entries at level contain substr
func (l *recordingLogger) count(level, substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && strings.Contains(e.msg, substr) {
			n++
		}
	}
	return n
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

type fakeDelegate struct {
	mu         sync.Mutex
	stops      []string
	forceStops []string
}

func (d *fakeDelegate) StopStream(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops = append(d.stops, id)
}

func (d *fakeDelegate) ForceStopStream(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forceStops = append(d.forceStops, id)
}

func (d *fakeDelegate) calls() (stops, forceStops []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.stops...), append([]string(nil), d.forceStops...)
}

type readyRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
	ch    chan struct{}
}

func newReadyRecorder() *readyRecorder {
	return &readyRecorder{ch: make(chan struct{}, 1)}
}

func (r *readyRecorder) fn(err error) {
	r.mu.Lock()
	r.calls++
	r.err = err
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *readyRecorder) result() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.err
}

type harness struct {
	sup      *Supervisor
	logger   *recordingLogger
	delegate *fakeDelegate
	ready    *readyRecorder
	frames   chan time.Duration

	mu       sync.Mutex
	reports  []ProgressReport
	outcomes []Outcome
}

func (h *harness) progress() []ProgressReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ProgressReport(nil), h.reports...)
}

func (h *harness) exits() []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Outcome(nil), h.outcomes...)
}

// startHelper runs the test binary as FFmpeg in the given helper mode
func startHelper(t *testing.T, mode string, debug bool) *harness {
	t.Helper()
	t.Setenv(helperEnv, mode)

	h := &harness{
		logger:   &recordingLogger{},
		delegate: &fakeDelegate{},
		ready:    newReadyRecorder(),
		frames:   make(chan time.Duration, 1),
	}

	sup, err := Start(Config{
		Label:     "Front Door",
		SessionID: "session-1",
		Binary:    os.Args[0],
		Logger:    h.logger,
		Debug:     debug,
		Delegate:  h.delegate,
		OnReady:   h.ready.fn,
		OnProgress: func(r ProgressReport) {
			h.mu.Lock()
			h.reports = append(h.reports, r)
			h.mu.Unlock()
		},
		OnFirstFrame: func(latency time.Duration) { h.frames <- latency },
		OnExit: func(o Outcome) {
			h.mu.Lock()
			h.outcomes = append(h.outcomes, o)
			h.mu.Unlock()
		},
		Sampler: NewNullSampler(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.sup = sup
	return h
}

func waitFor(t *testing.T, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func (h *harness) waitFirstFrame(t *testing.T) {
	t.Helper()
	select {
	case <-h.frames:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for first frame")
	}
}

func TestStartInvalidConfig(t *testing.T) {
	if _, err := Start(Config{Delegate: &fakeDelegate{}}); err == nil {
		t.Error("expected error for empty binary")
	}
	if _, err := Start(Config{Binary: "ffmpeg"}); err == nil {
		t.Error("expected error for missing delegate")
	}
}

func TestSupervisorProgressAndGracefulStop(t *testing.T) {
	h := startHelper(t, "progress", true)

	waitFor(t, h.ready.ch, 5*time.Second, "ready callback")
	h.waitFirstFrame(t)

	if st := h.sup.Status(); !st.Started || st.PID == 0 {
		t.Fatalf("unexpected status %+v", st)
	}

	if err := h.sup.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, h.sup.Done(), time.Second, "exit")

	if n := h.logger.count("debug", "(Expected)"); n != 1 {
		t.Errorf("expected one (Expected) debug line, got %d", n)
	}
	if n := h.logger.count("debug", "Getting the first frames took"); n != 1 {
		t.Errorf("expected one startup line, got %d", n)
	}

	h.sup.mu.Lock()
	kills := h.sup.kills
	h.sup.mu.Unlock()
	if kills != 0 {
		t.Errorf("expected no kill, got %d", kills)
	}

	if calls, err := h.ready.result(); calls != 1 || err != nil {
		t.Errorf("ready called %d times with %v", calls, err)
	}

	frames := []int64{}
	for _, r := range h.progress() {
		frames = append(frames, r.Frame)
	}
	if diff := cmp.Diff([]int64{0, 10, 20}, frames); diff != "" {
		t.Errorf("progress frames mismatch (-want +got):\n%s", diff)
	}

	stops, forceStops := h.delegate.calls()
	if len(stops) != 0 || len(forceStops) != 0 {
		t.Errorf("unexpected delegate calls: stop=%v force=%v", stops, forceStops)
	}

	if diff := cmp.Diff([]Outcome{OutcomeExpected}, h.exits()); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	if err := h.sup.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop after exit = %v, want ErrNotRunning", err)
	}
}

func TestSupervisorStopEscalatesToKill(t *testing.T) {
	h := startHelper(t, "stall", false)
	h.waitFirstFrame(t)

	h.sup.mu.Lock()
	h.sup.killTimeout = 200 * time.Millisecond
	h.sup.mu.Unlock()

	start := time.Now()
	if err := h.sup.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitFor(t, h.sup.Done(), 3*time.Second, "exit")

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("process exited before the kill timeout: %v", elapsed)
	}

	h.sup.mu.Lock()
	kills := h.sup.kills
	h.sup.mu.Unlock()
	if kills != 1 {
		t.Errorf("expected exactly one kill, got %d", kills)
	}

	if n := h.logger.count("debug", "(Forced)"); n != 1 {
		t.Errorf("expected one (Forced) debug line, got %d", n)
	}
	stops, forceStops := h.delegate.calls()
	if len(stops) != 0 || len(forceStops) != 0 {
		t.Errorf("unexpected delegate calls: stop=%v force=%v", stops, forceStops)
	}
}

func TestSupervisorKill(t *testing.T) {
	h := startHelper(t, "stall", false)
	h.waitFirstFrame(t)

	if err := h.sup.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	waitFor(t, h.sup.Done(), 3*time.Second, "exit")

	if diff := cmp.Diff([]Outcome{OutcomeForced}, h.exits()); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if err := h.sup.Kill(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Kill after exit = %v, want ErrNotRunning", err)
	}
}

func TestSupervisorExternalKillIsUnexpected(t *testing.T) {
	h := startHelper(t, "stall", false)
	h.waitFirstFrame(t)

	// killed behind the supervisor's back
	if err := h.sup.cmd.Process.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	waitFor(t, h.sup.Done(), 3*time.Second, "exit")

	if n := h.logger.count("error", "(Unexpected)"); n != 1 {
		t.Errorf("expected one (Unexpected) error line, got %d", n)
	}
	stops, forceStops := h.delegate.calls()
	if len(stops) != 0 || len(forceStops) != 0 {
		t.Errorf("unexpected delegate calls: stop=%v force=%v", stops, forceStops)
	}
}

func TestSupervisorExit255IsUnexpected(t *testing.T) {
	h := startHelper(t, "interrupted", false)
	waitFor(t, h.sup.Done(), 5*time.Second, "exit")

	if n := h.logger.count("error", "code: 255 and signal: null (Unexpected)"); n != 1 {
		t.Errorf("expected one (Unexpected) error line, got %d", n)
	}
	stops, forceStops := h.delegate.calls()
	if len(stops) != 0 || len(forceStops) != 0 {
		t.Errorf("unexpected delegate calls: stop=%v force=%v", stops, forceStops)
	}
}

func TestSupervisorStderrLogging(t *testing.T) {
	t.Run("debug on", func(t *testing.T) {
		h := startHelper(t, "stderr", true)
		waitFor(t, h.ready.ch, 5*time.Second, "ready callback")

		deadline := time.Now().Add(5 * time.Second)
		for h.logger.count("error", "[error] bad thing happened") == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		if err := h.sup.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		waitFor(t, h.sup.Done(), time.Second, "exit")

		if n := h.logger.count("error", "[error] bad thing happened"); n != 1 {
			t.Errorf("expected tagged line at error level, got %d", n)
		}
		if n := h.logger.count("debug", "[info] hello from ffmpeg"); n != 1 {
			t.Errorf("expected untagged line at debug level, got %d", n)
		}
	})

	t.Run("debug off", func(t *testing.T) {
		h := startHelper(t, "stderr", false)
		waitFor(t, h.ready.ch, 5*time.Second, "ready callback")

		if err := h.sup.Stop(); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		waitFor(t, h.sup.Done(), time.Second, "exit")

		if h.logger.contains("bad thing happened") || h.logger.contains("hello from ffmpeg") {
			t.Errorf("stderr should not be logged with debug off: %+v", h.logger.entries)
		}
		if calls, err := h.ready.result(); calls != 1 || err != nil {
			t.Errorf("ready called %d times with %v", calls, err)
		}
	})
}

func TestSupervisorErrorBeforeStarted(t *testing.T) {
	h := startHelper(t, "fail-early", false)
	waitFor(t, h.sup.Done(), 5*time.Second, "exit")

	calls, err := h.ready.result()
	if calls != 1 {
		t.Fatalf("ready called %d times", calls)
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.Termination.Code != 2 || exitErr.Outcome != OutcomeError {
		t.Errorf("unexpected exit error %+v", exitErr)
	}

	stops, forceStops := h.delegate.calls()
	if diff := cmp.Diff([]string{"session-1"}, stops); diff != "" {
		t.Errorf("stops mismatch (-want +got):\n%s", diff)
	}
	if len(forceStops) != 0 {
		t.Errorf("unexpected force stops %v", forceStops)
	}
	if n := h.logger.count("error", "code: 2 and signal: null (Error)"); n != 1 {
		t.Errorf("expected one (Error) line, got %d", n)
	}
}

func TestSupervisorErrorAfterStarted(t *testing.T) {
	h := startHelper(t, "fail-late", false)
	waitFor(t, h.sup.Done(), 5*time.Second, "exit")

	if calls, err := h.ready.result(); calls != 1 || err != nil {
		t.Errorf("ready called %d times with %v", calls, err)
	}

	stops, forceStops := h.delegate.calls()
	if diff := cmp.Diff([]string{"session-1"}, stops); diff != "" {
		t.Errorf("stops mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"session-1"}, forceStops); diff != "" {
		t.Errorf("force stops mismatch (-want +got):\n%s", diff)
	}
}

func TestSupervisorSpawnFailure(t *testing.T) {
	h := &harness{logger: &recordingLogger{}, delegate: &fakeDelegate{}, ready: newReadyRecorder()}

	sup, err := Start(Config{
		SessionID: "session-2",
		Binary:    "/nonexistent/ffmpeg",
		Logger:    h.logger,
		Delegate:  h.delegate,
		OnReady:   h.ready.fn,
		Sampler:   NewNullSampler(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, sup.Done(), time.Second, "spawn failure")

	if calls, err := h.ready.result(); calls != 1 || !errors.Is(err, ErrSpawnFailed) {
		t.Errorf("ready called %d times with %v", calls, err)
	}
	stops, forceStops := h.delegate.calls()
	if diff := cmp.Diff([]string{"session-2"}, stops); diff != "" {
		t.Errorf("stops mismatch (-want +got):\n%s", diff)
	}
	if len(forceStops) != 0 {
		t.Errorf("unexpected force stops %v", forceStops)
	}
	if h.logger.count("error", ErrSpawnFailed.Error()) != 1 {
		t.Errorf("expected creation failure to be logged")
	}
	if err := sup.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop = %v, want ErrNotRunning", err)
	}
	if sup.Stdin() != nil {
		t.Error("expected nil stdin")
	}
}

func TestLogStartup(t *testing.T) {
	tests := []struct {
		latency time.Duration
		level   string
	}{
		{time.Second, "debug"},
		{4999 * time.Millisecond, "debug"},
		{5 * time.Second, "warn"},
		{21900 * time.Millisecond, "warn"},
		{22 * time.Second, "error"},
		{time.Minute, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			l := &recordingLogger{}
			s := &Supervisor{logger: l}
			s.logStartup(tt.latency)

			want := fmt.Sprintf("Getting the first frames took %.3f seconds.", tt.latency.Seconds())
			if diff := cmp.Diff([]logEntry{{level: tt.level, msg: want}}, l.entries, cmp.AllowUnexported(logEntry{})); diff != "" {
				t.Errorf("log mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStartupLoggedOnce(t *testing.T) {
	l := &recordingLogger{}
	s := &Supervisor{logger: l, sampler: NewNullSampler(), startTime: time.Now()}

	s.handleStdout([]byte(progressBlock(0)))
	if l.count("debug", "Getting the first frames") != 0 {
		t.Fatal("frame=0 must not count as started")
	}

	s.handleStdout([]byte(progressBlock(10)))
	s.handleStdout([]byte(progressBlock(20)))
	s.handleStdout([]byte("garbage"))

	if n := l.count("debug", "Getting the first frames"); n != 1 {
		t.Errorf("expected the startup line once, got %d", n)
	}
	if !s.Status().Started {
		t.Error("expected started")
	}
}

// quitting through Stdin bypasses Stop, so the exit is not ours
func TestSupervisorStdinQuitIsError(t *testing.T) {
	h := startHelper(t, "progress", false)
	h.waitFirstFrame(t)

	if _, err := io.WriteString(h.sup.Stdin(), "q\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	waitFor(t, h.sup.Done(), 5*time.Second, "exit")

	if diff := cmp.Diff([]Outcome{OutcomeError}, h.exits()); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	stops, forceStops := h.delegate.calls()
	if len(stops) != 1 || len(forceStops) != 1 {
		t.Errorf("delegate calls: stop=%v force=%v", stops, forceStops)
	}
}
