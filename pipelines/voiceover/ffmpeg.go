package voiceover

import (
	"context"
	"fmt"
	"os"
	"time"

	"narrator/common"
)

// Prober measures an audio file's duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Stretcher time-compresses audio by factor without changing pitch.
type Stretcher interface {
	Stretch(ctx context.Context, in, out string, factor float64) error
}

// Concatenator joins audio files, in the given order, into one mp3.
type Concatenator interface {
	Concat(ctx context.Context, files []string, out string) error
}

// FFmpeg implements Prober, Stretcher and Concatenator with ffprobe and ffmpeg.
type FFmpeg struct {
	Runner  common.Runner
	FFmpeg  string
	FFprobe string
	Timeout time.Duration
}

func NewFFmpeg(cfg *common.PipelineConfig, runner common.Runner) *FFmpeg {
	return &FFmpeg{
		Runner:  runner,
		FFmpeg:  cfg.Tools.FFmpeg,
		FFprobe: cfg.Tools.FFprobe,
		Timeout: cfg.Tools.Timeout,
	}
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	return common.ProbeDuration(ctx, f.Runner, f.FFprobe, f.Timeout, path)
}

func (f *FFmpeg) Stretch(ctx context.Context, in, out string, factor float64) error {
	_, err := f.Runner.Run(ctx, f.Timeout, f.FFmpeg, StretchArgs(in, out, factor)...)
	return err
}

// StretchArgs builds an atempo invocation. atempo keeps pitch and accepts 0.5 to 2.0.
func StretchArgs(in, out string, factor float64) []string {
	return []string{
		"-y",
		"-i", in,
		"-filter:a", fmt.Sprintf("atempo=%.3f", factor),
		"-vn",
		out,
	}
}

func (f *FFmpeg) Concat(ctx context.Context, files []string, out string) error {
	if len(files) == 0 {
		return fmt.Errorf("no audio files to concatenate")
	}
	listPath := out + "_list.txt"
	if err := os.WriteFile(listPath, []byte(common.ConcatList(files, 0)), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer common.RemoveFiles(listPath)

	_, err := f.Runner.Run(ctx, f.Timeout, f.FFmpeg,
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-c:a", "libmp3lame", "-q:a", "4",
		out,
	)
	if err != nil {
		return err
	}
	if !common.FileNonEmpty(out) {
		return fmt.Errorf("concat produced no output at %s", out)
	}
	return nil
}
