package mux

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"narrator/common"
)

var log = common.Logger("mux")

// Muxer lays a narration track over a silent video.
type Muxer struct {
	Runner    common.Runner
	FFmpeg    string
	Timeout   time.Duration
	OutputDir string
}

func New(cfg *common.PipelineConfig, runner common.Runner) *Muxer {
	return &Muxer{
		Runner:    runner,
		FFmpeg:    cfg.Tools.FFmpeg,
		Timeout:   cfg.Tools.Timeout,
		OutputDir: cfg.Paths.OutputDir,
	}
}

// Mux never fails: without a track, or when ffmpeg fails, the silent video is returned.
func (m *Muxer) Mux(ctx context.Context, video common.VideoArtifact, track *common.NarrationTrack, runID string) common.Deliverable {
	silent := common.Deliverable{Path: video.Path, Fidelity: video.Fidelity}
	logger := log.WithFields(logrus.Fields{"run_id": runID, "fidelity": video.Fidelity})

	if track == nil || !common.FileNonEmpty(track.Path) {
		logger.Info("no narration track, delivering silent video")
		return silent
	}
	if err := os.MkdirAll(m.OutputDir, 0755); err != nil {
		logger.WithError(err).Warn("cannot create output dir, delivering silent video")
		return silent
	}

	stem := strings.TrimSuffix(filepath.Base(video.Path), filepath.Ext(video.Path))
	stem = strings.TrimSuffix(stem, "_"+runID)
	out := common.RunFile(m.OutputDir, runID, stem+"_narrated", ".mp4")
	if _, err := m.Runner.Run(ctx, m.Timeout, m.FFmpeg, Args(video.Path, track.Path, out)...); err != nil {
		logger.WithError(err).Warn("mux failed, delivering silent video")
		common.RemoveFiles(out)
		return silent
	}
	if !common.FileNonEmpty(out) {
		logger.Warn("mux wrote no output, delivering silent video")
		return silent
	}

	logger.Infof("narrated video written to %s", out)
	return common.Deliverable{Path: out, Fidelity: video.Fidelity, Narrated: true}
}

// Args copies the video stream, encodes the narration to AAC and stops at the shorter input.
func Args(video, audio, out string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		out,
	}
}
