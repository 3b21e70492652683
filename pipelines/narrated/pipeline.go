package narrated

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"narrator/common"
	"narrator/pipelines/mux"
	"narrator/pipelines/narration"
	"narrator/pipelines/render"
	"narrator/pipelines/timeline"
	"narrator/pipelines/voiceover"
	"narrator/slides"
	"narrator/storage"
)

// ErrVideoGenerationFailed is returned when no render stage produced a video.
var ErrVideoGenerationFailed = errors.New("video generation failed")

var log = common.Logger("pipeline")

type Request struct {
	ScriptPath string `json:"script_path"`
	SceneName  string `json:"scene"`
	Topic      string `json:"topic,omitempty"`
	Level      string `json:"level,omitempty"`
	Quality    string `json:"quality,omitempty"`
}

type Result struct {
	RunID       string             `json:"run_id"`
	Deliverable common.Deliverable `json:"deliverable"`
	Steps       int                `json:"steps"`
	Segments    int                `json:"segments"`
	Clips       int                `json:"clips"`
	Trace       []string           `json:"render_trace"`
}

// Narrator produces a narration track for a list of segments.
type Narrator interface {
	Build(ctx context.Context, segments []common.NarrationSegment, runID string) (*common.NarrationTrack, error)
}

// Renderer produces a silent video for a script.
type Renderer interface {
	Render(ctx context.Context, attempt common.RenderAttempt) (common.VideoArtifact, render.Trace, error)
}

// Muxer joins the track and the video.
type Muxer interface {
	Mux(ctx context.Context, video common.VideoArtifact, track *common.NarrationTrack, runID string) common.Deliverable
}

// Publisher stores the deliverable.
type Publisher interface {
	Publish(ctx context.Context, d common.Deliverable) (common.Deliverable, error)
}

type Pipeline struct {
	Config    *common.PipelineConfig
	Planner   narration.Strategy
	Narrator  Narrator
	Renderer  Renderer
	Muxer     Muxer
	Publisher Publisher
}

// New wires the production pipeline. The Gemini planner is used when enabled and keyed;
// close releases its client.
func New(ctx context.Context, cfg *common.PipelineConfig, runner common.Runner) (p *Pipeline, closeFn func(), err error) {
	closeFn = func() {}
	engine, err := voiceover.New(cfg, runner)
	if err != nil {
		return nil, closeFn, err
	}

	var planner narration.Strategy = narration.NewPlanner()
	if cfg.Narration.UseLLM && cfg.GeminiKey != "" {
		gemini, err := common.NewGeminiClient(ctx, cfg.GeminiKey, cfg.Narration.Model)
		if err != nil {
			log.WithError(err).Warn("gemini unavailable, using heuristic narration")
		} else {
			planner = narration.NewLLMPlanner(gemini, narration.NewPlanner(), cfg.Narration.Level)
			closeFn = gemini.Close
		}
	}

	return &Pipeline{
		Config:    cfg,
		Planner:   planner,
		Narrator:  engine,
		Renderer:  render.New(cfg, runner, slides.Default(cfg, runner), slides.FrameProbe{}),
		Muxer:     mux.New(cfg, runner),
		Publisher: storage.NewPublisher(ctx, cfg),
	}, closeFn, nil
}

// Process renders and narrates a script concurrently, then muxes and publishes the result.
// Only a total render failure is returned as an error.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	data, err := os.ReadFile(req.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	script := string(data)
	runID := common.NewRunID()
	if req.SceneName == "" {
		if scenes := timeline.FindScenes(script); len(scenes) > 0 {
			req.SceneName = scenes[0]
		}
	}
	logger := log.WithFields(logrus.Fields{"run_id": runID, "scene": req.SceneName})
	logger.Infof("processing %s", req.ScriptPath)
	if req.SceneName == "" {
		logger.Warn("no scene declared in script, rendering fallbacks without narration")
	}

	// stages run to completion even if the caller goes away
	stageCtx := context.WithoutCancel(ctx)
	res := &Result{RunID: runID}

	var (
		track     *common.NarrationTrack
		video     common.VideoArtifact
		trace     render.Trace
		renderErr error
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		if req.SceneName == "" {
			return nil
		}
		steps := timeline.Extract(script, req.SceneName)
		res.Steps = len(steps)
		if len(steps) == 0 {
			logger.Warn("no timeline steps, video will be silent")
			return nil
		}
		hints := narration.Hints{Topic: req.Topic, Level: req.Level}
		if hints.Topic == "" {
			hints.Topic = p.Config.Narration.Topic
		}
		if hints.Topic == "" {
			hints.Topic = narration.TopicFromScript(script)
		}

		segments := p.Planner.Segments(stageCtx, steps, hints)
		res.Segments = len(segments)

		t, err := p.Narrator.Build(stageCtx, segments, runID)
		if err != nil {
			logger.WithError(err).Warn("narration failed, video will be silent")
			return nil
		}
		track = t
		logger.Debug(voiceover.Summary(t))
		return nil
	})
	g.Go(func() error {
		video, trace, renderErr = p.Renderer.Render(stageCtx, common.RenderAttempt{
			ScriptPath: req.ScriptPath,
			SceneName:  req.SceneName,
			Quality:    req.Quality,
			RunID:      runID,
		})
		return nil
	})
	_ = g.Wait()

	res.Trace = trace.Strings()
	if renderErr != nil {
		if track != nil {
			common.RemoveFiles(track.Path)
		}
		return res, fmt.Errorf("%w: %w", ErrVideoGenerationFailed, renderErr)
	}
	if track != nil {
		res.Clips = len(track.Clips)
	}

	deliverable := p.Muxer.Mux(stageCtx, video, track, runID)
	if deliverable.Narrated && track != nil {
		// the muxed file replaces both inputs
		common.RemoveFiles(track.Path)
		if video.Path != deliverable.Path {
			common.RemoveFiles(video.Path)
		}
	}
	if p.Publisher != nil {
		published, err := p.Publisher.Publish(stageCtx, deliverable)
		if err != nil {
			logger.WithError(err).Warn("publish failed, deliverable left in place")
		}
		deliverable = published
	}
	res.Deliverable = deliverable

	logger.WithFields(logrus.Fields{
		"fidelity": deliverable.Fidelity,
		"narrated": deliverable.Narrated,
		"clips":    res.Clips,
	}).Infof("done: %s", deliverable.Path)
	return res, nil
}
