// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/streamsupervisor/internal/ffmpeg"
	"github.com/ZSC714725/streamsupervisor/internal/process"
	"github.com/ZSC714725/streamsupervisor/internal/session"
)

// foreground is the delegate for a single supervisor run from the terminal
type foreground struct {
	mu  sync.Mutex
	sup *process.Supervisor
}

func (f *foreground) set(sup *process.Supervisor) {
	f.mu.Lock()
	f.sup = sup
	f.mu.Unlock()
}

func (f *foreground) get() *process.Supervisor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sup
}

func (f *foreground) StopStream(string) {
	if sup := f.get(); sup != nil {
		_ = sup.Stop()
	}
}

func (f *foreground) ForceStopStream(string) {
	if sup := f.get(); sup != nil {
		_ = sup.Kill()
	}
}

func runCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "run [flags] -- <ffmpeg args>",
		Short: "Supervise one FFmpeg process in the foreground",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ff, err := newFFmpeg(&cfg.FFmpeg)
			if err != nil {
				return err
			}

			var (
				delegate = &foreground{}
				outcome  = process.OutcomeExpected
				out      = cmd.OutOrStdout()
			)

			sc := &session.Config{Options: args}
			sup, err := ff.NewSupervisor(ffmpeg.SupervisorConfig{
				Label:    label,
				Args:     sc.CreateCommand(),
				Logger:   newLogger(),
				Delegate: delegate,
				OnProgress: func(report process.ProgressReport) {
					fmt.Fprintf(out, "frame=%d fps=%.1f bitrate=%.1fkbits/s speed=%.2fx\n",
						report.Frame, report.FPS, report.Bitrate, report.Speed)
				},
				// runs before Done is closed
				OnExit: func(o process.Outcome) { outcome = o },
			})
			if err != nil {
				return err
			}
			delegate.set(sup)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			for stops := 0; ; {
				select {
				case <-sigCh:
					// 第二次信号直接杀掉
					stops++
					if stops == 1 {
						err = sup.Stop()
					} else {
						err = sup.Kill()
					}
					if err != nil && !errors.Is(err, process.ErrNotRunning) {
						return err
					}
				case <-sup.Done():
					switch outcome {
					case process.OutcomeExpected, process.OutcomeForced:
						return nil
					default:
						return fmt.Errorf("ffmpeg ended: %s", outcome)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&label, "label", "ffmpeg", "Label used in log lines")
	return cmd
}
