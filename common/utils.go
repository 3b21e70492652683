package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRunID returns a short unique id used to qualify intermediate file names.
func NewRunID() string {
	return time.Now().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}

// RunFile builds a run-qualified file name inside dir.
func RunFile(dir, runID, stem, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, runID, ext))
}

// FileNonEmpty reports whether path is an existing regular file with content.
func FileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// RemoveFiles deletes paths, ignoring ones that are already gone.
func RemoveFiles(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			Logger("common").WithError(err).Warnf("could not remove %s", p)
		}
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ProbeDuration asks ffprobe for a media file's duration in seconds.
func ProbeDuration(ctx context.Context, r Runner, ffprobe string, timeout time.Duration, path string) (float64, error) {
	output, err := r.Run(ctx, timeout, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", durationStr, err)
	}
	return duration, nil
}

// ConcatList renders an ffmpeg concat-demuxer list. A non-zero duration adds a
// duration line per entry and repeats the last entry so its duration is honoured.
func ConcatList(files []string, duration float64) string {
	var sb strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = f
		}
		sb.WriteString(fmt.Sprintf("file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)))
		if duration > 0 {
			sb.WriteString(fmt.Sprintf("duration %.2f\n", duration))
		}
	}
	if duration > 0 && len(files) > 0 {
		last, err := filepath.Abs(files[len(files)-1])
		if err != nil {
			last = files[len(files)-1]
		}
		sb.WriteString(fmt.Sprintf("file '%s'\n", strings.ReplaceAll(last, "'", `'\''`)))
	}
	return sb.String()
}

// EscapeLatex escapes special LaTeX characters in text
func EscapeLatex(text string) string {
	return latexReplacer.Replace(text)
}

// Single pass, so the braces introduced for backslash are not escaped again.
var latexReplacer = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"&", "\\&",
	"%", "\\%",
	"$", "\\$",
	"#", "\\#",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\textasciicircum{}",
)
