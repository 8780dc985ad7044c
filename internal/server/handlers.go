package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cropsight-lab/cropsight/internal/catalog"
	"github.com/cropsight-lab/cropsight/internal/core/geometry"
	"github.com/cropsight-lab/cropsight/internal/core/storage"
	"github.com/cropsight-lab/cropsight/internal/pipeline"
	"github.com/cropsight-lab/cropsight/internal/tasks"
)

// analysisRequest triggers an analysis run. Boundary is an optional GeoJSON
// Polygon; when omitted the farm's stored boundary is used.
type analysisRequest struct {
	UserID   uuid.UUID       `json:"user_id" binding:"required"`
	Boundary json.RawMessage `json:"boundary"`
}

func (s *Server) parseAnalysisRequest(c *gin.Context) (pipeline.Request, bool) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm id"})
		return pipeline.Request{}, false
	}

	var body analysisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return pipeline.Request{}, false
	}

	req := pipeline.Request{UserID: body.UserID, FarmID: farmID}
	if len(body.Boundary) > 0 {
		poly, err := geometry.UnmarshalGeoJSON(body.Boundary)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return pipeline.Request{}, false
		}
		req.Boundary = poly
	}
	return req, true
}

func (s *Server) scheduleAnalysisHandler(c *gin.Context) {
	req, ok := s.parseAnalysisRequest(c)
	if !ok {
		return
	}

	taskID, err := s.deps.Orchestrator.ScheduleAnalysis(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tasks.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": tasks.StatusQueued})
}

func (s *Server) runAnalysisHandler(c *gin.Context) {
	req, ok := s.parseAnalysisRequest(c)
	if !ok {
		return
	}

	res, err := s.deps.Runner.Run(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, storage.ErrFarmNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "farm not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) taskStatusHandler(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	rec, err := s.deps.Orchestrator.Status(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type imageryFetchRequest struct {
	Boundary      json.RawMessage `json:"boundary" binding:"required"`
	MaxCloudCover float64         `json:"max_cloud_cover"`
	Limit         int             `json:"limit"`
}

func (s *Server) fetchImageryHandler(c *gin.Context) {
	var body imageryFetchRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	poly, err := geometry.UnmarshalGeoJSON(body.Boundary)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID, err := s.deps.Orchestrator.ScheduleImageryFetch(poly, catalog.SearchOptions{
		MaxCloudCover: body.MaxCloudCover,
		Limit:         body.Limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID, "status": tasks.StatusQueued})
}

func (s *Server) alertSweepHandler(c *gin.Context) {
	created, err := s.deps.AlertEngine.Sweep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts_created": created})
}

func (s *Server) fleetScanHandler(c *gin.Context) {
	queued, err := s.deps.Orchestrator.RunFleetScan(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"farms_queued": queued})
}

func (s *Server) listAnalysesHandler(c *gin.Context) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	records, err := s.deps.Analyses.ListAnalyses(c.Request.Context(), farmID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records})
}

func (s *Server) listAlertsHandler(c *gin.Context) {
	farmID, err := uuid.Parse(c.Param("farm_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid farm id"})
		return
	}

	alertList, err := s.deps.Alerts.ListAlerts(c.Request.Context(), farmID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alertList})
}

func (s *Server) markAlertReadHandler(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("alert_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	if err := s.deps.Alerts.MarkAlertRead(c.Request.Context(), alertID); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

func (s *Server) deleteAlertHandler(c *gin.Context) {
	alertID, err := uuid.Parse(c.Param("alert_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	if err := s.deps.Alerts.DeleteAlert(c.Request.Context(), alertID); err != nil {
		if errors.Is(err, storage.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
