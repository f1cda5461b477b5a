// Package api exposes the IPC control surface: daemon and per-bot
// status, lifecycle actions, the chat command pipeline over HTTP, and
// the metrics endpoint.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/crypto/bcrypt"

	"cardfarm/internal/bot"
	"cardfarm/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Server serves the control API for one supervisor.
type Server struct {
	log     *slog.Logger
	sup     *bot.Supervisor
	bind    string
	hash    string // bcrypt password hash; empty allows unauthenticated access
	ownerID uint64
	started time.Time
}

// New builds the API server around a supervisor.
func New(sup *bot.Supervisor, global config.Global, log *slog.Logger) *Server {
	return &Server{
		log:     log,
		sup:     sup,
		bind:    global.IPCBindAddress,
		hash:    global.IPCPasswordHash,
		ownerID: global.OwnerID,
		started: time.Now(),
	}
}

// Handler builds the route tree. Exposed for tests; Run wires it into
// the listening server.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", s.auth)
	api.GET("/daemon", s.daemonStatus)
	api.POST("/daemon/exit", s.daemonExit)
	api.POST("/daemon/restart", s.daemonRestart)
	api.GET("/bot/:name", s.botStatus)
	api.POST("/bot/:name/start", s.botStart)
	api.POST("/bot/:name/stop", s.botStop)
	api.POST("/bot/:name/pause", s.botPause)
	api.POST("/bot/:name/resume", s.botResume)
	api.POST("/bot/:name/input", s.botInput)
	api.POST("/command", s.command)

	return r
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.bind,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("api listening", "addr", s.bind)

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

func (s *Server) auth(c *gin.Context) {
	if s.hash == "" {
		return
	}
	pass := c.GetHeader("Authorization")
	if pass == "" || bcrypt.CompareHashAndPassword([]byte(s.hash), []byte(pass)) != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

type daemonInfo struct {
	Version      string       `json:"version"`
	Variant      string       `json:"variant"`
	ProcessStart time.Time    `json:"process_start"`
	MemoryKB     uint64       `json:"memory_kb"`
	Bots         []bot.Status `json:"bots"`
}

func (s *Server) daemonStatus(c *gin.Context) {
	bots := s.sup.Bots()
	statuses := make([]bot.Status, 0, len(bots))
	for _, b := range bots {
		statuses = append(statuses, b.Status())
	}

	c.JSON(http.StatusOK, daemonInfo{
		Version:      bot.Version,
		Variant:      runtime.GOOS + "-" + runtime.GOARCH,
		ProcessStart: s.started,
		MemoryKB:     s.memoryKB(),
		Bots:         statuses,
	})
}

func (s *Server) memoryKB() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		s.log.Warn("reading process info failed", "error", err)
		return 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil || mem == nil {
		s.log.Warn("reading process memory failed", "error", err)
		return 0
	}
	return mem.RSS / 1024
}

func (s *Server) daemonExit(c *gin.Context) {
	s.log.Info("exit requested over api")
	s.sup.Shutdown()
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

func (s *Server) daemonRestart(c *gin.Context) {
	s.log.Info("restart requested over api")
	s.sup.RequestRestart()
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

// namedBot resolves the :name parameter, replying 404 on a miss.
func (s *Server) namedBot(c *gin.Context) *bot.Bot {
	name := c.Param("name")
	b := s.sup.Bot(name)
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("bot %q not found", name)})
	}
	return b
}

func (s *Server) botStatus(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}
	c.JSON(http.StatusOK, b.Status())
}

func (s *Server) botStart(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}
	b.RequestStart()
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

func (s *Server) botStop(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}
	b.Stop()
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

func (s *Server) botPause(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}
	b.Pause(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

func (s *Server) botResume(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}
	b.Resume(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

type inputRequest struct {
	Type string `json:"type" binding:"required"` // email or 2fa
	Code string `json:"code" binding:"required"`
}

// botInput feeds a logon stalled on an email or two-factor code.
func (s *Server) botInput(c *gin.Context) {
	b := s.namedBot(c)
	if b == nil {
		return
	}

	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch strings.ToLower(req.Type) {
	case "email":
		b.ProvideEmailCode(req.Code)
	case "2fa":
		b.ProvideTwoFactorCode(req.Code)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown input type %q", req.Type)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "ok"})
}

type commandRequest struct {
	Command string `json:"command" binding:"required"`
	Bot     string `json:"bot"` // defaults to the first bot
}

// command runs the chat command pipeline as the configured owner.
func (s *Server) command(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var b *bot.Bot
	if req.Bot != "" {
		if b = s.sup.Bot(req.Bot); b == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("bot %q not found", req.Bot)})
			return
		}
	} else {
		bots := s.sup.Bots()
		if len(bots) == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no bots configured"})
			return
		}
		b = bots[0]
	}

	cmd := req.Command
	if !strings.HasPrefix(cmd, "!") {
		cmd = "!" + cmd
	}
	result := b.Response(c.Request.Context(), s.ownerID, cmd)
	c.JSON(http.StatusOK, gin.H{"result": result})
}
