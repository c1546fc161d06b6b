package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"stempack/internal/pack"
	"stempack/internal/run"
)

type startRunResponse struct {
	RunID  string     `json:"run_id"`
	Status run.Status `json:"status"`
}

type runResponse struct {
	ID         string            `json:"id"`
	Status     run.Status        `json:"status"`
	CreatedAt  string            `json:"created_at"`
	FinishedAt string            `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Report     *pack.RunReport   `json:"report,omitempty"`
	Archives   map[string]string `json:"archives,omitempty"`
}

type API struct {
	runManager *run.Manager
}

func NewAPI(runManager *run.Manager) *API {
	return &API{runManager: runManager}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/runs", a.StartRun)
		api.GET("/runs", a.ListRuns)
		api.GET("/runs/:id", a.GetRun)
		api.GET("/runs/:id/archives/:stem", a.DownloadArchive)
	}
}

// StartRun starts a packaging run in the background. The JSON body is optional.
func (a *API) StartRun(c *gin.Context) {
	var req run.Request
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Msg("invalid start run request")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	started, err := a.runManager.Start(req)
	if err != nil {
		if errors.Is(err, run.ErrBusy) {
			log.Warn().Msg("rejecting run: server is at max concurrency")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		log.Warn().Err(err).Msg("failed to start run")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("run_id", started.ID).Time("created_at", started.CreatedAt).Msg("run started")
	c.JSON(http.StatusAccepted, startRunResponse{RunID: started.ID, Status: started.Status})
}

// ListRuns returns all known runs, newest first
func (a *API) ListRuns(c *gin.Context) {
	runs := a.runManager.List()
	resp := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		resp = append(resp, toRunResponse(r))
	}
	c.JSON(http.StatusOK, resp)
}

// GetRun returns run status and, once finished, its report
func (a *API) GetRun(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.runManager.Get(id); ok {
		c.JSON(http.StatusOK, toRunResponse(found))
		return
	}
	log.Warn().Str("run_id", id).Msg("run not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": run.ErrRunNotFound.Error()})
}

// DownloadArchive serves one stem's archive of a finished run
func (a *API) DownloadArchive(c *gin.Context) {
	id, stemName := c.Param("id"), c.Param("stem")
	archivePath, err := a.runManager.ArchivePath(id, stemName)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, run.ErrRunNotFinished) {
			status = http.StatusConflict
		}
		log.Warn().Str("run_id", id).Str("stem", stemName).Err(err).Msg("archive not available")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("run_id", id).Str("path", archivePath).Msg("serving archive download")
	c.FileAttachment(archivePath, filepath.Base(archivePath))
}

func toRunResponse(r run.Run) runResponse {
	resp := runResponse{
		ID:        r.ID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
		Error:     r.Error,
		Report:    r.Report,
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	if r.Report != nil {
		for _, res := range r.Report.Results {
			if res.ArchivePath == "" {
				continue
			}
			if resp.Archives == nil {
				resp.Archives = make(map[string]string)
			}
			resp.Archives[res.Stem] = "/api/v1/runs/" + r.ID + "/archives/" + res.Stem
		}
	}
	return resp
}
