// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/streamsupervisor/internal/session"
)

// Handler holds dependencies
type Handler struct {
	store session.Store
}

// NewHandler creates API handler
func NewHandler(store session.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts the session routes on g
func (h *Handler) Register(g gin.IRouter) {
	g.GET("/sessions", h.ListSessions)
	g.POST("/sessions", h.OpenSession)
	g.GET("/sessions/:id", h.GetSession)
	g.DELETE("/sessions/:id", h.StopSession)
	g.POST("/sessions/:id/kill", h.KillSession)
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// OpenSession POST /api/v1/sessions
func (h *Handler) OpenSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	if len(req.Input) == 0 || len(req.Output) == 0 {
		errResp(c, http.StatusBadRequest, "At least one input and one output required", "")
		return
	}

	sess, err := h.store.Open(c.Request.Context(), requestToConfig(&req))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExists):
			errResp(c, http.StatusBadRequest, "Session exists", err.Error())
		case errors.Is(err, session.ErrInvalidInputAddress), errors.Is(err, session.ErrInvalidOutputAddress):
			errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
		case errors.Is(err, session.ErrInvalidConfig):
			errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		case errors.Is(err, session.ErrReadyTimeout), errors.Is(err, context.DeadlineExceeded):
			errResp(c, http.StatusGatewayTimeout, "FFmpeg not ready", err.Error())
		default:
			// FFmpeg 启动失败或提前退出
			errResp(c, http.StatusBadGateway, "FFmpeg failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, sessionToAPI(sess))
}

// ListSessions GET /api/v1/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions := h.store.List()
	out := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionToAPI(sess))
	}
	c.JSON(http.StatusOK, out)
}

// GetSession GET /api/v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown session ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, sessionToAPI(sess))
}

// StopSession DELETE /api/v1/sessions/:id
func (h *Handler) StopSession(c *gin.Context) {
	h.command(c, h.store.Stop)
}

// KillSession POST /api/v1/sessions/:id/kill
func (h *Handler) KillSession(c *gin.Context) {
	h.command(c, h.store.Kill)
}

func (h *Handler) command(c *gin.Context, fn func(id string) error) {
	if err := fn(c.Param("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown session ID", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Command failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

func requestToConfig(req *SessionRequest) *session.Config {
	cfg := &session.Config{
		ID:      req.ID,
		Label:   req.Label,
		Options: req.Options,
		Debug:   req.Debug,
	}
	for _, in := range req.Input {
		cfg.Input = append(cfg.Input, session.ConfigIO{ID: in.ID, Address: in.Address, Options: in.Options})
	}
	for _, out := range req.Output {
		cfg.Output = append(cfg.Output, session.ConfigIO{ID: out.ID, Address: out.Address, Options: out.Options})
	}
	return cfg
}

func sessionToAPI(sess *session.Session) Session {
	st := sess.State()

	state := &SessionState{
		PID:           st.PID,
		Started:       st.Started,
		StopRequested: st.StopRequested,
		Exited:        st.Exited,
		Outcome:       st.Outcome,
		Runtime:       int64(st.Uptime.Seconds()),
		Memory:        st.Memory,
		CPU:           st.CPU,
		Command:       sess.Config.CreateCommand(),
	}
	if p := st.Progress; p != nil {
		state.Progress = &Progress{
			Frame: p.Frame, FPS: p.FPS, Quantizer: p.StreamQ, Bitrate: p.Bitrate,
			Size: p.TotalSize, OutTimeUs: p.OutTimeUs, OutTime: p.OutTime,
			Dup: p.DupFrames, Drop: p.DropFrames, Speed: p.Speed, Status: p.Progress,
		}
	}

	return Session{
		ID:        sess.ID,
		Label:     sess.Label,
		CreatedAt: sess.CreatedAt,
		State:     state,
	}
}
