// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lithammer/shortuuid/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZSC714725/streamsupervisor/internal/ffmpeg"
	"github.com/ZSC714725/streamsupervisor/internal/logger"
	"github.com/ZSC714725/streamsupervisor/internal/metrics"
	"github.com/ZSC714725/streamsupervisor/internal/process"
)

// DefaultReadyTimeout bounds how long Open waits for FFmpeg's first output
const DefaultReadyTimeout = 10 * time.Second

// Session is one streaming session with its FFmpeg supervisor
type Session struct {
	ID        string
	Label     string
	Config    *Config
	CreatedAt int64

	mu       sync.RWMutex
	sup      *process.Supervisor
	progress *process.ProgressReport
	outcome  string
	done     chan struct{}
}

// State is a snapshot of a session
type State struct {
	process.Status
	Progress *process.ProgressReport
	Outcome  string
}

func newSession(id string, config *Config) *Session {
	label := config.Label
	if label == "" {
		label = id
	}
	return &Session{
		ID:        id,
		Label:     label,
		Config:    config,
		CreatedAt: time.Now().Unix(),
		done:      make(chan struct{}),
	}
}

func (s *Session) supervisor() *process.Supervisor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sup
}

func (s *Session) setProgress(report process.ProgressReport) {
	s.mu.Lock()
	s.progress = &report
	s.mu.Unlock()
}

func (s *Session) setOutcome(outcome process.Outcome) {
	s.mu.Lock()
	s.outcome = outcome.String()
	s.mu.Unlock()
}

// State returns supervisor status merged with the latest progress
func (s *Session) State() State {
	var st State
	if sup := s.supervisor(); sup != nil {
		st.Status = sup.Status()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.progress != nil {
		p := *s.progress
		st.Progress = &p
	}
	st.Outcome = s.outcome
	return st
}

// Done is closed once FFmpeg has exited and the session was released
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Store manages sessions in memory. It is also the delegate FFmpeg
// supervisors call to tear their session down.
type Store interface {
	process.Delegate

	Open(ctx context.Context, config *Config) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Stop(id string) error
	Kill(id string) error
	Close(ctx context.Context) error
}

// StoreConfig for NewStore
type StoreConfig struct {
	FFmpeg       ffmpeg.FFmpeg
	Logger       logger.Logger
	Metrics      *metrics.Metrics
	ReadyTimeout time.Duration
}

type store struct {
	ffmpeg       ffmpeg.FFmpeg
	logger       logger.Logger
	metrics      *metrics.Metrics
	readyTimeout time.Duration

	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewStore creates a session store
func NewStore(config StoreConfig) Store {
	s := &store{
		ffmpeg:       config.FFmpeg,
		logger:       config.Logger,
		metrics:      config.Metrics,
		readyTimeout: config.ReadyTimeout,
		sessions:     make(map[string]*Session),
	}
	if s.logger == nil {
		s.logger = logger.Discard
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = DefaultReadyTimeout
	}
	return s
}

func (s *store) validate(config *Config) error {
	if len(config.Input) == 0 || len(config.Output) == 0 {
		return ErrInvalidConfig
	}
	for _, in := range config.Input {
		if !s.ffmpeg.ValidateInput(in.Address) {
			return fmt.Errorf("%w: %s", ErrInvalidInputAddress, in.Address)
		}
	}
	for _, out := range config.Output {
		if !s.ffmpeg.ValidateOutput(out.Address) {
			return fmt.Errorf("%w: %s", ErrInvalidOutputAddress, out.Address)
		}
	}
	return nil
}

// Open starts FFmpeg for a new session and waits until it is ready
func (s *store) Open(ctx context.Context, config *Config) (*Session, error) {
	if err := s.validate(config); err != nil {
		return nil, err
	}
	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}

	s.mu.Lock()
	if _, exists := s.sessions[config.ID]; exists {
		s.mu.Unlock()
		return nil, ErrSessionExists
	}
	sess := newSession(config.ID, config)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	ready := make(chan error, 1)
	sup, err := s.ffmpeg.NewSupervisor(ffmpeg.SupervisorConfig{
		Label:     sess.Label,
		SessionID: sess.ID,
		Args:      config.CreateCommand(),
		Logger:    s.logger,
		Debug:     config.Debug,
		Delegate:  s,
		OnReady:   func(err error) { ready <- err },
		OnProgress: func(report process.ProgressReport) {
			sess.setProgress(report)
			s.metrics.ObserveProgress(sess.ID, report)
		},
		OnFirstFrame: func(latency time.Duration) {
			s.metrics.ObserveStartup(latency.Seconds())
		},
		OnExit: func(outcome process.Outcome) {
			sess.setOutcome(outcome)
			s.metrics.ObserveExit(outcome)
		},
	})
	if err != nil {
		s.detach(sess.ID)
		close(sess.done)
		return nil, err
	}

	sess.mu.Lock()
	sess.sup = sup
	sess.mu.Unlock()

	// stopped while the supervisor was being handed back
	if _, err := s.Get(sess.ID); err != nil {
		sup.Stop()
	}

	s.metrics.SessionOpened()
	go s.reap(sess, sup)

	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-timer.C:
		s.logger.Error("Session %s: %v", sess.ID, ErrReadyTimeout)
		s.StopStream(sess.ID)
		return nil, ErrReadyTimeout
	case <-ctx.Done():
		s.StopStream(sess.ID)
		return nil, ctx.Err()
	}

	s.logger.Info("Session %s (%s) is streaming", sess.ID, sess.Label)
	return sess, nil
}

// reap releases a session once its FFmpeg is gone
func (s *store) reap(sess *Session, sup *process.Supervisor) {
	<-sup.Done()
	s.detachSession(sess)
	s.metrics.SessionClosed(sess.ID)
	close(sess.done)
}

func (s *store) detach(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	return sess
}

func (s *store) detachSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.ID] == sess {
		delete(s.sessions, sess.ID)
	}
}

func (s *store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *store) List() []*Session {
	s.mu.RLock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stop asks the session's FFmpeg to quit
func (s *store) Stop(id string) error {
	sess := s.detach(id)
	if sess == nil {
		return ErrNotFound
	}
	sup := sess.supervisor()
	if sup == nil {
		return nil
	}
	if err := sup.Stop(); err != nil && !errors.Is(err, process.ErrNotRunning) {
		return err
	}
	return nil
}

// Kill terminates the session's FFmpeg immediately
func (s *store) Kill(id string) error {
	sess := s.detach(id)
	if sess == nil {
		return ErrNotFound
	}
	sup := sess.supervisor()
	if sup == nil {
		return nil
	}
	if err := sup.Kill(); err != nil && !errors.Is(err, process.ErrNotRunning) {
		return err
	}
	return nil
}

// StopStream implements process.Delegate
func (s *store) StopStream(id string) {
	if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("Session %s: stop: %v", id, err)
	}
}

// ForceStopStream implements process.Delegate
func (s *store) ForceStopStream(id string) {
	if err := s.Kill(id); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error("Session %s: kill: %v", id, err)
	}
}

// Close stops every session and waits for them to finish
func (s *store) Close(ctx context.Context) error {
	var result *multierror.Error

	sessions := s.List()
	for _, sess := range sessions {
		if err := s.Stop(sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
			result = multierror.Append(result, fmt.Errorf("unable to stop session '%s': %w", sess.ID, err))
		}
	}

	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			result = multierror.Append(result, fmt.Errorf("session '%s' still running: %w", sess.ID, ctx.Err()))
		}
	}

	return result.ErrorOrNil()
}
