package render

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"narrator/common"
)

var log = common.Logger("render")

// State is a node of the render fallback state machine.
type State int

const (
	AttemptPrimary State = iota
	PrimaryOK
	AttemptSlideshow
	SlideshowOK
	AttemptMinimal
	MinimalOK
	Failed
)

func (s State) String() string {
	switch s {
	case AttemptPrimary:
		return "AttemptPrimary"
	case PrimaryOK:
		return "PrimaryOK"
	case AttemptSlideshow:
		return "AttemptSlideshow"
	case SlideshowOK:
		return "SlideshowOK"
	case AttemptMinimal:
		return "AttemptMinimal"
	case MinimalOK:
		return "MinimalOK"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == PrimaryOK || s == SlideshowOK || s == MinimalOK || s == Failed
}

// Outcome is how a stage ended.
type Outcome int

const (
	OK Outcome = iota
	Fallback
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Fallback:
		return "fallback"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// StageResult is returned by every stage. Artifact is set only when Outcome is OK.
type StageResult struct {
	Outcome  Outcome
	Artifact *common.VideoArtifact
	Reason   string
}

// Stage is one way of producing a video.
type Stage interface {
	Name() string
	Run(ctx context.Context, attempt common.RenderAttempt) StageResult
}

// ArtifactProbe confirms a video file can be decoded.
type ArtifactProbe interface {
	Frames(path string) (int, error)
}

// Transition records one edge taken through the state machine.
type Transition struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type Trace []Transition

// Final returns the state the run ended in.
func (t Trace) Final() State {
	if len(t) == 0 {
		return AttemptPrimary
	}
	return t[len(t)-1].To
}

func (t Trace) Strings() []string {
	out := make([]string, len(t))
	for i, tr := range t {
		out[i] = fmt.Sprintf("%s -> %s", tr.From, tr.To)
		if tr.Reason != "" {
			out[i] += " (" + tr.Reason + ")"
		}
	}
	return out
}

type edge struct {
	stage    Stage
	ok       State
	fallback State
}

// Orchestrator walks the stages until one produces a video.
type Orchestrator struct {
	edges map[State]edge
	probe ArtifactProbe
}

// NewOrchestrator wires the primary, slideshow and minimal stages. probe may be nil.
func NewOrchestrator(primary, slideshow, minimal Stage, probe ArtifactProbe) *Orchestrator {
	return &Orchestrator{
		edges: map[State]edge{
			AttemptPrimary:   {stage: primary, ok: PrimaryOK, fallback: AttemptSlideshow},
			AttemptSlideshow: {stage: slideshow, ok: SlideshowOK, fallback: AttemptMinimal},
			AttemptMinimal:   {stage: minimal, ok: MinimalOK, fallback: Failed},
		},
		probe: probe,
	}
}

// New builds the default three-stage orchestrator on the given runner and slide renderer.
func New(cfg *common.PipelineConfig, runner common.Runner, slides SlideRenderer, probe ArtifactProbe) *Orchestrator {
	return NewOrchestrator(
		&Primary{Runner: runner, Config: cfg, Fixes: DefaultFixes},
		&Slideshow{Runner: runner, Config: cfg, Slides: slides},
		&Minimal{Runner: runner, Config: cfg},
		probe,
	)
}

// Render always returns the trace. It returns common.ErrNoArtifact when every stage failed.
func (o *Orchestrator) Render(ctx context.Context, attempt common.RenderAttempt) (common.VideoArtifact, Trace, error) {
	logger := log.WithFields(logrus.Fields{"run_id": attempt.RunID, "scene": attempt.SceneName})
	var trace Trace
	state := AttemptPrimary
	var artifact *common.VideoArtifact

	for !state.Terminal() {
		e := o.edges[state]
		if e.stage == nil {
			trace = append(trace, Transition{From: state, To: e.fallback, Reason: "stage not configured"})
			state = e.fallback
			continue
		}

		res := o.check(e.stage.Run(ctx, attempt))
		var next State
		switch res.Outcome {
		case OK:
			next = e.ok
			artifact = res.Artifact
		case Fallback:
			next = e.fallback
		case Fatal:
			next = Failed
		}
		trace = append(trace, Transition{From: state, To: next, Reason: res.Reason})
		if res.Outcome != OK {
			logger.WithField("stage", e.stage.Name()).Warnf("%s: %s", res.Outcome, res.Reason)
		}
		state = next
	}

	if state == Failed || artifact == nil {
		logger.Error("every render stage failed")
		return common.VideoArtifact{}, trace, common.ErrNoArtifact
	}
	logger.WithField("fidelity", artifact.Fidelity).Infof("video rendered: %s", artifact.Path)
	return *artifact, trace, nil
}

// check demotes an OK result whose file is missing, empty or undecodable.
func (o *Orchestrator) check(res StageResult) StageResult {
	if res.Outcome != OK {
		return res
	}
	if res.Artifact == nil || !common.FileNonEmpty(res.Artifact.Path) {
		return StageResult{Outcome: Fallback, Reason: "stage reported success without a video file"}
	}
	if o.probe != nil {
		frames, err := o.probe.Frames(res.Artifact.Path)
		if err != nil || frames == 0 {
			return StageResult{Outcome: Fallback, Reason: fmt.Sprintf("video not decodable: frames=%d err=%v", frames, err)}
		}
	}
	return res
}
