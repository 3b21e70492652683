package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"narrator/common"
	"narrator/pipelines/narrated"
)

// ErrNoVideoRequested is reported when a render request carries no script.
var ErrNoVideoRequested = errors.New("no video requested")

const maxUpload = 10 << 20

// RenderRequest is the JSON form of POST /render. Script holds the source text.
type RenderRequest struct {
	Script  string `json:"script"`
	Scene   string `json:"scene"`
	Topic   string `json:"topic"`
	Level   string `json:"level"`
	Quality string `json:"quality"`
}

type Server struct {
	cfg       *common.PipelineConfig
	pool      *WorkerPool
	store     *StatusStore
	uploadDir string
}

// New starts the worker pool. Status files live under the upload dir.
func New(cfg *common.PipelineConfig, proc Processor) (*Server, error) {
	uploadDir := cfg.Server.UploadDir
	store, err := NewStatusStore(filepath.Join(uploadDir, "status"))
	if err != nil {
		return nil, fmt.Errorf("create status store: %w", err)
	}
	return &Server{
		cfg:       cfg,
		pool:      NewWorkerPool(cfg.Server.Workers, cfg.Server.QueueSize, proc, store),
		store:     store,
		uploadDir: uploadDir,
	}, nil
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxUpload

	router.POST("/render", s.handleRender)
	router.GET("/status/:id", s.handleStatus)
	router.GET("/health", s.handleHealth)
	router.Static("/videos", s.cfg.Paths.OutputDir)
	return router
}

func (s *Server) handleRender(c *gin.Context) {
	jobID := uuid.NewString()

	var (
		req narrated.Request
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = s.fromUpload(c, jobID)
	} else {
		req, err = s.fromJSON(c, jobID)
	}
	if errors.Is(err, ErrNoVideoRequested) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).Error("could not store script")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.Quality != "" {
		if _, ok := common.QualityFlags[req.Quality]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown quality %q", req.Quality)})
			return
		}
	}

	if err := s.pool.Submit(&Job{ID: jobID, Request: req}); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, ErrQueueFull) {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"error": err.Error(), "job_id": jobID})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     jobID,
		"status":     StatusQueued,
		"status_url": "/status/" + jobID,
	})
}

func (s *Server) fromUpload(c *gin.Context, jobID string) (narrated.Request, error) {
	header, err := c.FormFile("script")
	if err != nil {
		return narrated.Request{}, ErrNoVideoRequested
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return narrated.Request{}, err
	}
	path := filepath.Join(s.uploadDir, jobID+"_"+filepath.Base(header.Filename))
	if err := c.SaveUploadedFile(header, path); err != nil {
		return narrated.Request{}, err
	}
	return narrated.Request{
		ScriptPath: path,
		SceneName:  c.PostForm("scene"),
		Topic:      c.PostForm("topic"),
		Level:      c.PostForm("level"),
		Quality:    c.PostForm("quality"),
	}, nil
}

func (s *Server) fromJSON(c *gin.Context, jobID string) (narrated.Request, error) {
	var body RenderRequest
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Script) == "" {
		return narrated.Request{}, ErrNoVideoRequested
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return narrated.Request{}, err
	}
	path := filepath.Join(s.uploadDir, jobID+".py")
	if err := os.WriteFile(path, []byte(body.Script), 0644); err != nil {
		return narrated.Request{}, err
	}
	return narrated.Request{
		ScriptPath: path,
		SceneName:  body.Scene,
		Topic:      body.Topic,
		Level:      body.Level,
		Quality:    body.Quality,
	}, nil
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	status, err := s.store.Get(id)
	if errors.Is(err, ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"workers":     s.pool.numWorkers,
		"goroutines":  runtime.NumGoroutine(),
		"queued_jobs": s.pool.Queued(),
	})
}

// Run serves until ctx is done, then drains the worker pool.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s with %d workers", srv.Addr, s.pool.numWorkers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.pool.Shutdown()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.pool.Shutdown()
	return err
}

// Close drains the worker pool without an HTTP listener.
func (s *Server) Close() {
	s.pool.Shutdown()
}
