package voiceover

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"narrator/common"
)

var log = common.Logger("voiceover")

// FitFactor is the speed-up applied to a clip longer than its target, capped at maxSpeed.
// A clip within its budget is left at 1.0.
func FitFactor(measured, target, maxSpeed float64) float64 {
	if target <= 0 || measured <= target {
		return 1.0
	}
	if maxSpeed < 1.0 {
		maxSpeed = 1.0
	}
	return common.Clamp(measured/target, 1.0, maxSpeed)
}

// Engine synthesizes narration segments, fits each to its step and joins them into one track.
type Engine struct {
	synth       Synthesizer
	prober      Prober
	stretcher   Stretcher
	concat      Concatenator
	workDir     string
	maxSpeed    float64
	parallelism int
	timeout     time.Duration
}

func NewEngine(cfg *common.PipelineConfig, synth Synthesizer, prober Prober, stretcher Stretcher, concat Concatenator) *Engine {
	return &Engine{
		synth:       synth,
		prober:      prober,
		stretcher:   stretcher,
		concat:      concat,
		workDir:     cfg.Paths.WorkDir,
		maxSpeed:    cfg.Voice.MaxSpeed,
		parallelism: cfg.Voice.Parallelism,
		timeout:     cfg.Voice.Timeout,
	}
}

// New wires an engine with the configured provider and ffmpeg tooling.
func New(cfg *common.PipelineConfig, runner common.Runner) (*Engine, error) {
	synth, err := NewSynthesizer(cfg, runner)
	if err != nil {
		return nil, err
	}
	ff := NewFFmpeg(cfg, runner)
	return NewEngine(cfg, synth, ff, ff, ff), nil
}

type fitted struct {
	clip  common.AudioClip
	files []string
}

// Build returns the narration track, or nil when no segment produced audio or the final
// concatenation failed. Per-segment failures are logged and skipped.
func (e *Engine) Build(ctx context.Context, segments []common.NarrationSegment, runID string) (*common.NarrationTrack, error) {
	if err := os.MkdirAll(e.workDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	logger := log.WithField("run_id", runID)

	results := make([]*fitted, len(segments))
	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)
	for i, seg := range segments {
		i, seg := i, seg
		seg.Text = CleanText(seg.Text)
		if seg.Text == "" {
			logger.WithField("step", seg.StepIndex).Debug("empty narration, segment dropped")
			continue
		}
		g.Go(func() error {
			results[i] = e.fitSegment(ctx, seg, runID, logger)
			return nil
		})
	}
	_ = g.Wait()

	var clips []common.AudioClip
	var intermediates []string
	for _, r := range results {
		if r == nil {
			continue
		}
		clips = append(clips, r.clip)
		intermediates = append(intermediates, r.files...)
	}
	if len(clips) == 0 {
		logger.Warn("no narration clips synthesized, no track produced")
		return nil, nil
	}
	sort.SliceStable(clips, func(a, b int) bool { return clips[a].StepIndex < clips[b].StepIndex })

	paths := make([]string, len(clips))
	for i, c := range clips {
		paths[i] = c.Path
	}
	out := common.RunFile(e.workDir, runID, "narration", ".mp3")
	if err := e.concat.Concat(ctx, paths, out); err != nil {
		logger.WithError(err).Warn("narration concat failed, keeping segment files, no track produced")
		return nil, nil
	}

	track := &common.NarrationTrack{Path: out, Clips: clips}
	if d, err := e.prober.Duration(ctx, out); err == nil {
		track.Duration = d
	} else {
		for _, c := range clips {
			track.Duration += c.Duration
		}
	}
	common.RemoveFiles(intermediates...)

	logger.WithFields(logrus.Fields{
		"clips":    len(clips),
		"segments": len(segments),
		"duration": fmt.Sprintf("%.2fs", track.Duration),
	}).Info("narration track built")
	return track, nil
}

func (e *Engine) fitSegment(ctx context.Context, seg common.NarrationSegment, runID string, logger *logrus.Entry) *fitted {
	logger = logger.WithField("step", seg.StepIndex)
	stem := fmt.Sprintf("segment_%03d", seg.StepIndex)
	path := common.RunFile(e.workDir, runID, stem, "."+e.synth.Format())

	sctx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.synth.Synthesize(sctx, Request{Text: seg.Text, Path: path})
	cancel()
	if err == nil && !common.FileNonEmpty(path) {
		err = fmt.Errorf("synthesizer wrote no audio")
	}
	if err != nil {
		logger.WithError(err).Warn("synthesis failed, segment skipped")
		common.RemoveFiles(path)
		return nil
	}

	measured, err := e.prober.Duration(ctx, path)
	if err != nil {
		logger.WithError(err).Warn("duration probe failed, segment skipped")
		common.RemoveFiles(path)
		return nil
	}

	res := &fitted{
		clip: common.AudioClip{
			StepIndex:   seg.StepIndex,
			Path:        path,
			Duration:    measured,
			Target:      seg.Target,
			SpeedFactor: 1.0,
		},
		files: []string{path},
	}

	factor := FitFactor(measured, seg.Target, e.maxSpeed)
	if factor == 1.0 {
		return res
	}

	out := common.RunFile(e.workDir, runID, stem+"_fit", "."+e.synth.Format())
	if err := e.stretcher.Stretch(ctx, path, out, factor); err != nil {
		logger.WithError(err).Warnf("time-stretch x%.2f failed, keeping unstretched clip", factor)
		common.RemoveFiles(out)
		return res
	}
	res.files = append(res.files, out)
	res.clip.Path = out
	res.clip.SpeedFactor = factor
	if d, err := e.prober.Duration(ctx, out); err == nil {
		res.clip.Duration = d
	} else {
		res.clip.Duration = measured / factor
	}
	if res.clip.Duration > seg.Target {
		logger.Debugf("clip still %.2fs over its %.2fs budget after x%.2f", res.clip.Duration-seg.Target, seg.Target, factor)
	}
	return res
}

// Summary renders a short human-readable report of a track's clips.
func Summary(track *common.NarrationTrack) string {
	if track == nil {
		return "no narration"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d clips, %.2fs\n", len(track.Clips), track.Duration)
	for _, c := range track.Clips {
		fmt.Fprintf(&sb, "  step %d: %.2fs / %.2fs target, x%.2f\n", c.StepIndex, c.Duration, c.Target, c.SpeedFactor)
	}
	return sb.String()
}
