package slides

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"narrator/common"
)

var log = common.Logger("slides")

// Renderer draws one image per chunk into dir.
type Renderer interface {
	Render(ctx context.Context, chunks []string, dir string) ([]string, error)
}

// Chain tries each renderer in turn and returns the first complete set of slides.
type Chain []Renderer

func (c Chain) Render(ctx context.Context, chunks []string, dir string) ([]string, error) {
	var errs []error
	for i, r := range c {
		images, err := r.Render(ctx, chunks, dir)
		if err == nil && len(images) == len(chunks) {
			return images, nil
		}
		if err == nil {
			err = fmt.Errorf("rendered %d of %d slides", len(images), len(chunks))
		}
		log.WithError(err).Warnf("slide renderer %d failed", i)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no slide renderers configured")
	}
	return nil, errors.Join(errs...)
}

// Default prefers typeset beamer slides and falls back to the OpenCV canvas.
func Default(cfg *common.PipelineConfig, runner common.Runner) Chain {
	return Chain{
		NewLatexRenderer(cfg, runner),
		NewCanvasRenderer(cfg.Render.SlideWidth, cfg.Render.SlideHeight, cfg.Render.Title),
	}
}

// FrameProbe counts decodable frames with OpenCV.
type FrameProbe struct{}

func (FrameProbe) Frames(path string) (int, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return 0, fmt.Errorf("open video: %w", err)
	}
	defer vc.Close()

	if n := int(vc.Get(gocv.VideoCaptureFrameCount)); n > 0 {
		return n, nil
	}
	// some containers do not report a count; one decoded frame is enough
	frame := gocv.NewMat()
	defer frame.Close()
	if vc.Read(&frame) && !frame.Empty() {
		return 1, nil
	}
	return 0, nil
}
