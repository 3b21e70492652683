package render

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"narrator/common"
)

// SlideRenderer draws one PNG per chunk into dir. The first chunk is the title slide.
type SlideRenderer interface {
	Render(ctx context.Context, chunks []string, dir string) ([]string, error)
}

// Slideshow builds a video of text slides from the script's comments.
type Slideshow struct {
	Runner common.Runner
	Config *common.PipelineConfig
	Slides SlideRenderer
}

var commentPattern = regexp.MustCompile(`#\s*(.*)`)

func (s *Slideshow) Name() string { return "slideshow" }

func (s *Slideshow) Run(ctx context.Context, attempt common.RenderAttempt) StageResult {
	cfg := s.Config
	if s.Slides == nil {
		return fallback("no slide renderer configured")
	}
	data, err := os.ReadFile(attempt.ScriptPath)
	if err != nil {
		return fallback("read script: %v", err)
	}

	explanation := Explanation(string(data), cfg.Render.DefaultExplanation)
	chunks := Chunks(explanation, cfg.Render.Title, cfg.Render.PadSentence)

	dir := filepath.Join(cfg.Paths.WorkDir, "slides_"+attempt.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fallback("create slide dir: %v", err)
	}
	defer os.RemoveAll(dir)
	images, err := s.Slides.Render(ctx, chunks, dir)
	if err != nil {
		return fallback("render slides: %v", err)
	}
	if len(images) == 0 {
		return fallback("slide renderer produced no images")
	}

	listPath := filepath.Join(dir, "files.txt")
	perSlide := SlideDuration(explanation, len(images))
	if err := os.WriteFile(listPath, []byte(common.ConcatList(images, perSlide)), 0644); err != nil {
		return fallback("write slide list: %v", err)
	}

	out := common.RunFile(cfg.Paths.WorkDir, attempt.RunID, "slideshow", ".mp4")
	if _, err := s.Runner.Run(ctx, cfg.Tools.Timeout, cfg.Tools.FFmpeg, SlideshowArgs(listPath, out)...); err != nil {
		return fallback("encode slideshow: %v", err)
	}
	if !common.FileNonEmpty(out) {
		return fallback("slideshow encoder wrote no video")
	}

	return StageResult{
		Outcome:  OK,
		Artifact: &common.VideoArtifact{Path: out, Fidelity: common.FidelitySlideshow},
	}
}

// SlideshowArgs encodes a concat list of images into an h264 video with even dimensions.
func SlideshowArgs(listPath, out string) []string {
	return []string{
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-vsync", "vfr",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-c:v", "libx264",
		out,
	}
}

// Explanation joins every comment of the script, skipping shebang and encoding lines. Text
// shorter than ten characters is replaced by def.
func Explanation(script, def string) string {
	var parts []string
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#!") || strings.Contains(trimmed, "coding:") {
			continue
		}
		m := commentPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if text := strings.TrimSpace(m[1]); text != "" {
			parts = append(parts, text)
		}
	}
	explanation := strings.Join(parts, " ")
	if len(explanation) < 10 {
		return def
	}
	return explanation
}

// Chunks splits text into word-bounded slides of 20 to 50 words, pads to at least three
// content slides and puts the title first.
func Chunks(text, title, pad string) []string {
	words := strings.Fields(text)
	perSlide := len(words) / 5
	if perSlide < 20 {
		perSlide = 20
	}
	if perSlide > 50 {
		perSlide = 50
	}

	var chunks []string
	for i := 0; i < len(words); i += perSlide {
		end := i + perSlide
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	for len(chunks) < 3 {
		chunks = append(chunks, pad)
	}
	return append([]string{title}, chunks...)
}

// SlideDuration spreads a 10 to 30 second budget, scaled by text length, over the slides.
func SlideDuration(explanation string, slides int) float64 {
	if slides <= 0 {
		return 0
	}
	total := common.Clamp(float64(len(explanation))/50, 10, 30)
	return total / float64(slides)
}
