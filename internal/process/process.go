// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具
//
// Package process supervises the FFmpeg process of one streaming session.

package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultKillTimeout is the grace period between "q" and SIGKILL
	DefaultKillTimeout = 2 * time.Second

	startupWarnAfter  = 5 * time.Second
	startupErrorAfter = 22 * time.Second
)

var (
	// ErrSpawnFailed is passed to the ready callback if FFmpeg could not be started
	ErrSpawnFailed = errors.New("FFmpeg process creation failed")
	// ErrNotRunning is returned when there is no live process to act on
	ErrNotRunning = errors.New("FFmpeg process is not running")
)

var severityTag = regexp.MustCompile(`\[(panic|fatal|error)\]`)

// Logger is what the supervisor logs through. It is expected to already
// carry the session label.
type Logger interface {
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	ForceDebug(format string, args ...interface{})
}

// Delegate tears down the streaming session on behalf of the supervisor
type Delegate interface {
	StopStream(sessionID string)
	ForceStopStream(sessionID string)
}

// Config for a supervisor
type Config struct {
	Label     string
	SessionID string
	Binary    string
	Args      []string
	Logger    Logger
	Debug     bool
	Delegate  Delegate

	// OnReady is called at most once: with nil on the first stderr line,
	// or with an error if FFmpeg failed before that.
	OnReady func(err error)

	// Optional hooks, called from the supervisor's event goroutine.
	OnProgress   func(report ProgressReport)
	OnFirstFrame func(latency time.Duration)
	OnExit       func(outcome Outcome)

	// Sampler defaults to a gopsutil sampler
	Sampler Sampler
}

// Status of a supervisor
type Status struct {
	Label         string
	SessionID     string
	PID           int
	Started       bool
	StopRequested bool
	Exited        bool
	Uptime        time.Duration
	CPU           float64
	Memory        uint64
}

type eventKind int

const (
	eventStdout eventKind = iota
	eventStderr
	eventSpawnError
	eventExit
)

type event struct {
	kind        eventKind
	data        []byte
	err         error
	termination Termination
}

// Supervisor owns one FFmpeg process. All reactions to process output and
// exit run on a single event goroutine.
type Supervisor struct {
	label     string
	sessionID string
	binary    string
	args      []string
	logger    Logger
	debug     bool
	delegate  Delegate
	sampler   Sampler

	onProgress   func(ProgressReport)
	onFirstFrame func(time.Duration)
	onExit       func(Outcome)

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	startTime time.Time

	events chan event
	done   chan struct{}

	// event goroutine only
	onReady func(error)

	mu            sync.Mutex
	running       bool
	started       bool
	exited        bool
	stopRequested bool
	killed        bool
	kills         int
	killTimeout   time.Duration
	killTimer     *time.Timer
	killGen       uint64
}

// Start launches FFmpeg and returns its supervisor. Only an invalid config
// is reported here; a failing spawn goes through the ready callback and the
// delegate like every other failure.
func Start(config Config) (*Supervisor, error) {
	if len(config.Binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}
	if config.Delegate == nil {
		return nil, fmt.Errorf("no delegate given")
	}

	s := &Supervisor{
		label:        config.Label,
		sessionID:    config.SessionID,
		binary:       config.Binary,
		args:         config.Args,
		logger:       config.Logger,
		debug:        config.Debug,
		delegate:     config.Delegate,
		sampler:      config.Sampler,
		onReady:      config.OnReady,
		onProgress:   config.OnProgress,
		onFirstFrame: config.OnFirstFrame,
		onExit:       config.OnExit,
		killTimeout:  DefaultKillTimeout,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
	}

	if s.logger == nil {
		s.logger = &nopLogger{}
	}
	if s.sampler == nil {
		s.sampler = NewSysSampler()
	}

	s.startTime = time.Now()
	s.debugf("Starting FFmpeg: %s %s", s.binary, strings.Join(s.args, " "))

	go s.loop()

	if err := s.spawn(); err != nil {
		s.events <- event{kind: eventSpawnError, err: err}
	}
	return s, nil
}

func (s *Supervisor) spawn() error {
	// 继承宿主进程的环境变量
	cmd := exec.Command(s.binary, s.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.running = true
	s.mu.Unlock()

	if err := s.sampler.Start(cmd.Process.Pid); err != nil {
		s.logger.Debug("Resource sampling unavailable: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.read(stdout, scanProgressBlock, eventStdout)
	}()
	go func() {
		defer wg.Done()
		s.read(stderr, scanLine, eventStderr)
	}()

	// The exit event is queued only after both streams hit EOF.
	go func() {
		wg.Wait()
		cmd.Wait()
		s.events <- event{kind: eventExit, termination: terminationOf(cmd.ProcessState)}
	}()

	return nil
}

func (s *Supervisor) read(r io.Reader, split bufio.SplitFunc, kind eventKind) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxTokenSize)
	scanner.Split(split)

	for scanner.Scan() {
		data := make([]byte, len(scanner.Bytes()))
		copy(data, scanner.Bytes())
		s.events <- event{kind: kind, data: data}
	}

	// keep draining so FFmpeg never blocks on a full pipe
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) loop() {
	defer close(s.done)

	for ev := range s.events {
		switch ev.kind {
		case eventStdout:
			s.handleStdout(ev.data)
		case eventStderr:
			s.handleStderr(string(ev.data))
		case eventSpawnError:
			s.handleSpawnError(ev.err)
			return
		case eventExit:
			s.handleExit(ev.termination)
			return
		}
	}
}

func (s *Supervisor) handleStdout(data []byte) {
	report, ok := ParseProgress(data)
	if !ok {
		return
	}

	if s.onProgress != nil {
		s.onProgress(report)
	}

	if report.Frame <= 0 {
		return
	}

	s.mu.Lock()
	first := !s.started
	s.started = true
	s.mu.Unlock()

	if first {
		latency := time.Since(s.startTime)
		s.logStartup(latency)
		if s.onFirstFrame != nil {
			s.onFirstFrame(latency)
		}
	}
}

func (s *Supervisor) logStartup(latency time.Duration) {
	const msg = "Getting the first frames took %.3f seconds."

	switch {
	case latency < startupWarnAfter:
		s.debugf(msg, latency.Seconds())
	case latency < startupErrorAfter:
		s.logger.Warn(msg, latency.Seconds())
	default:
		s.logger.Error(msg, latency.Seconds())
	}
}

func (s *Supervisor) handleStderr(line string) {
	if cb := s.takeReady(); cb != nil {
		cb(nil)
	}

	if !s.debug {
		return
	}

	if severityTag.MatchString(line) {
		s.logger.Error("%s", line)
	} else {
		s.logger.ForceDebug("%s", line)
	}
}

func (s *Supervisor) handleSpawnError(err error) {
	s.mu.Lock()
	s.exited = true
	s.mu.Unlock()

	s.logger.Error("%v: %v", ErrSpawnFailed, err)

	if cb := s.takeReady(); cb != nil {
		cb(ErrSpawnFailed)
	}
	if s.onExit != nil {
		s.onExit(OutcomeSpawnFailed)
	}
	s.delegate.StopStream(s.sessionID)
}

func (s *Supervisor) handleExit(t Termination) {
	s.mu.Lock()
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	s.exited = true
	started := s.started
	outcome := Classify(t, s.stopRequested, s.killed || s.stopRequested)
	s.mu.Unlock()

	s.sampler.Stop()

	msg := exitMessage(t, outcome)
	switch outcome {
	case OutcomeExpected, OutcomeForced:
		s.debugf("%s", msg)
	default:
		s.logger.Error("%s", msg)
	}

	if s.onExit != nil {
		s.onExit(outcome)
	}

	if outcome != OutcomeError {
		return
	}

	s.delegate.StopStream(s.sessionID)
	if !started && s.onReady != nil {
		cb := s.takeReady()
		cb(&ExitError{Termination: t, Outcome: outcome})
	} else {
		s.delegate.ForceStopStream(s.sessionID)
	}
}

// takeReady hands out the ready callback once
func (s *Supervisor) takeReady() func(error) {
	cb := s.onReady
	s.onReady = nil
	return cb
}

func (s *Supervisor) debugf(format string, args ...interface{}) {
	if s.debug {
		s.logger.ForceDebug(format, args...)
	} else {
		s.logger.Debug(format, args...)
	}
}

// Stop asks FFmpeg to quit by writing "q" to its stdin, and kills it if it
// is still around after the kill timeout. Calling it again writes another
// "q" and re-arms the timer.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.exited {
		return ErrNotRunning
	}

	_, err := io.WriteString(s.stdin, quitCommand())
	if err != nil {
		err = fmt.Errorf("write quit command: %w", err)
	}

	if s.killTimer != nil {
		s.killTimer.Stop()
	}
	s.stopRequested = true
	s.killGen++
	gen := s.killGen
	s.killTimer = time.AfterFunc(s.killTimeout, func() {
		s.onKillTimeout(gen)
	})

	return err
}

func (s *Supervisor) onKillTimeout(gen uint64) {
	s.mu.Lock()
	if s.exited || s.killTimer == nil || gen != s.killGen {
		s.mu.Unlock()
		return
	}
	s.killTimer = nil
	proc := s.markKilled()
	s.mu.Unlock()

	s.logger.Debug("FFmpeg did not quit within %s, killing it", s.killTimeout)
	kill(proc)
}

// Kill terminates FFmpeg right away
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	if !s.running || s.exited {
		s.mu.Unlock()
		return ErrNotRunning
	}
	proc := s.markKilled()
	s.mu.Unlock()

	return kill(proc)
}

// markKilled must be called with mu held
func (s *Supervisor) markKilled() *os.Process {
	s.killed = true
	s.kills++
	return s.cmd.Process
}

func kill(proc *os.Process) error {
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Stdin is FFmpeg's standard input, nil if the process never started
func (s *Supervisor) Stdin() io.WriteCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdin
}

// Done is closed once the process has gone and the exit was handled
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Label is the human readable session name
func (s *Supervisor) Label() string {
	return s.label
}

// SessionID of the supervised stream
func (s *Supervisor) SessionID() string {
	return s.sessionID
}

// Status returns a snapshot of the supervisor
func (s *Supervisor) Status() Status {
	cpu, memory := s.sampler.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Label:         s.label,
		SessionID:     s.sessionID,
		Started:       s.started,
		StopRequested: s.stopRequested,
		Exited:        s.exited,
		Uptime:        time.Since(s.startTime),
		CPU:           cpu,
		Memory:        memory,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	return st
}

func quitCommand() string {
	if runtime.GOOS == "windows" {
		return "q\r\n"
	}
	return "q\n"
}

type nopLogger struct{}

func (l *nopLogger) Debug(format string, args ...interface{})      {}
func (l *nopLogger) Warn(format string, args ...interface{})       {}
func (l *nopLogger) Error(format string, args ...interface{})      {}
func (l *nopLogger) ForceDebug(format string, args ...interface{}) {}
