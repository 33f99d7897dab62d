package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"replenish/internal/config"
	"replenish/internal/jobs"
)

// Server exposes webhook endpoints that trigger jobs. Handlers return as soon
// as the job is accepted; results go to the log and the run log.
type Server struct {
	cfg    config.Config
	runner *jobs.Runner
	jobs   *jobs.Jobs
	engine *gin.Engine
}

func New(cfg config.Config, runner *jobs.Runner, jobSet *jobs.Jobs) *Server {
	if cfg.LogMode != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, runner: runner, jobs: jobSet, engine: gin.Default()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Webhooks accept GET as well so they can be kicked from a browser or a
	// bare spreadsheet button.
	webhook := s.engine.Group("/webhook")
	register := func(path string, handler gin.HandlerFunc) {
		webhook.POST(path, handler)
		webhook.GET(path, handler)
	}
	register("/prepare-replenishment", s.handlePrepareReplenishment)
	register("/po-push", s.trigger(jobs.JobPOPush, func() jobs.JobFunc { return s.jobs.POPush() }))
	register("/po-pull", s.handlePOPull)
	register("/populate-production", s.trigger(jobs.JobPopulateProduction, func() jobs.JobFunc { return s.jobs.PopulateProduction() }))
}

func (s *Server) trigger(name string, build func() jobs.JobFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.respond(c, name, s.runner.Trigger(name, build()))
	}
}

func (s *Server) handlePrepareReplenishment(c *gin.Context) {
	opts := jobs.PrepareOptions{
		UseCacheStock: c.Query("use_cache_stock") == "true",
		UseCacheSales: c.Query("use_cache_sales") == "true",
	}
	err := s.runner.Trigger(jobs.JobPrepareReplenishment, s.jobs.PrepareReplenishment(opts))
	s.respond(c, jobs.JobPrepareReplenishment, err)
}

func (s *Server) handlePOPull(c *gin.Context) {
	var createdFrom time.Time
	if raw := c.Query("created_from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "created_from must be YYYY-MM-DD"})
			return
		}
		createdFrom = parsed
	}
	err := s.runner.Trigger(jobs.JobPOPull, s.jobs.POPull(createdFrom))
	s.respond(c, jobs.JobPOPull, err)
}

func (s *Server) respond(c *gin.Context, name string, err error) {
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"job": name, "status": "already running"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"job": name, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "task started"})
}

func (s *Server) Run() error {
	return s.engine.Run(s.cfg.ServerAddr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
