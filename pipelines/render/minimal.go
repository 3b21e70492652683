package render

import (
	"context"
	"fmt"
	"os"
	"strings"

	"narrator/common"
)

// Minimal draws a solid-colour card with the explanation, then a bare card, using ffmpeg alone.
type Minimal struct {
	Runner common.Runner
	Config *common.PipelineConfig
}

func (m *Minimal) Name() string { return "minimal" }

func (m *Minimal) Run(ctx context.Context, attempt common.RenderAttempt) StageResult {
	cfg := m.Config
	if err := os.MkdirAll(cfg.Paths.WorkDir, 0755); err != nil {
		return StageResult{Outcome: Fatal, Reason: fmt.Sprintf("create work dir: %v", err)}
	}
	out := common.RunFile(cfg.Paths.WorkDir, attempt.RunID, "minimal", ".mp4")

	explanation := cfg.Render.DefaultExplanation
	if data, err := os.ReadFile(attempt.ScriptPath); err == nil {
		explanation = Explanation(string(data), explanation)
	}
	textPath := common.RunFile(cfg.Paths.WorkDir, attempt.RunID, "minimal_text", ".txt")
	defer common.RemoveFiles(textPath)

	var reasons []string
	if err := os.WriteFile(textPath, []byte(CardText(cfg.Render.Title, explanation)), 0644); err == nil {
		args := MinimalTextArgs(cfg.Render.MinimalColor, cfg.Render.MinimalFont, textPath, out)
		if _, err := m.Runner.Run(ctx, cfg.Tools.Timeout, cfg.Tools.FFmpeg, args...); err != nil {
			reasons = append(reasons, err.Error())
		} else if common.FileNonEmpty(out) {
			return minimalOK(out)
		}
	} else {
		reasons = append(reasons, err.Error())
	}

	args := MinimalBareArgs(cfg.Render.MinimalColor, out)
	if _, err := m.Runner.Run(ctx, cfg.Tools.Timeout, cfg.Tools.FFmpeg, args...); err != nil {
		reasons = append(reasons, err.Error())
	} else if common.FileNonEmpty(out) {
		return minimalOK(out)
	}

	return StageResult{Outcome: Fatal, Reason: "minimal card failed: " + strings.Join(reasons, "; ")}
}

func minimalOK(path string) StageResult {
	return StageResult{
		Outcome:  OK,
		Artifact: &common.VideoArtifact{Path: path, Fidelity: common.FidelityMinimal},
	}
}

// CardText wraps the explanation under the title, capped so it fits one 720p card.
func CardText(title, explanation string) string {
	const width, maxLines = 60, 10
	var lines []string
	line := ""
	for _, w := range strings.Fields(explanation) {
		if line != "" && len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		if line == "" {
			line = w
		} else {
			line += " " + w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	if len(lines) > maxLines {
		lines = append(lines[:maxLines-1], lines[maxLines-1]+" ...")
	}
	return title + "\n\n" + strings.Join(lines, "\n")
}

func MinimalTextArgs(color, font, textPath, out string) []string {
	draw := fmt.Sprintf("drawtext=textfile=%s:fontcolor=white:fontsize=30:x=(w-text_w)/2:y=(h-text_h)/2", escapeFilterPath(textPath))
	if font != "" {
		draw = fmt.Sprintf("drawtext=fontfile=%s:textfile=%s:fontcolor=white:fontsize=30:x=(w-text_w)/2:y=(h-text_h)/2",
			escapeFilterPath(font), escapeFilterPath(textPath))
	}
	return []string{
		"-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=1280x720:d=10", color),
		"-vf", draw,
		"-pix_fmt", "yuv420p",
		out,
	}
}

func MinimalBareArgs(color, out string) []string {
	return []string{
		"-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=640x480:d=5", color),
		"-pix_fmt", "yuv420p",
		out,
	}
}

// escapeFilterPath quotes characters that are special inside an ffmpeg filter argument.
func escapeFilterPath(p string) string {
	return strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`).Replace(p)
}
