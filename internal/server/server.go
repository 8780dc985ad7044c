// Package server exposes the HTTP surface: health, analysis triggers, task
// status polling, alert management. Thin by design; all behavior lives in
// the pipeline, orchestrator and alert engine.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cropsight-lab/cropsight/internal/alerts"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
	"github.com/cropsight-lab/cropsight/internal/pipeline"
	"github.com/cropsight-lab/cropsight/internal/tasks"
)

// Dependencies are the collaborators the handlers delegate to.
type Dependencies struct {
	Runner       *pipeline.Runner
	Orchestrator *tasks.Orchestrator
	AlertEngine  *alerts.Engine
	Analyses     storage.AnalysisStore
	Alerts       storage.AlertStore
}

type Server struct {
	Engine *gin.Engine
	Addr   string
	db     *sql.DB
	deps   Dependencies
}

func New(addr string, db *sql.DB, mode string, deps Dependencies) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine: r,
		Addr:   addr,
		db:     db,
		deps:   deps,
	}

	r.GET("/health", s.healthHandler)

	api := r.Group("/api/v1")
	{
		api.POST("/farms/:farm_id/analyses", s.scheduleAnalysisHandler)
		api.POST("/farms/:farm_id/analyses/sync", s.runAnalysisHandler)
		api.GET("/farms/:farm_id/analyses", s.listAnalysesHandler)
		api.GET("/tasks/:task_id", s.taskStatusHandler)
		api.POST("/imagery/fetch", s.fetchImageryHandler)
		api.POST("/alerts/sweep", s.alertSweepHandler)
		api.POST("/fleet/scan", s.fleetScanHandler)
		api.GET("/farms/:farm_id/alerts", s.listAlertsHandler)
		api.PATCH("/alerts/:alert_id/read", s.markAlertReadHandler)
		api.DELETE("/alerts/:alert_id", s.deleteAlertHandler)
	}

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
