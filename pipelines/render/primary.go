package render

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"narrator/common"
)

// Primary renders the script with the animation renderer.
type Primary struct {
	Runner common.Runner
	Config *common.PipelineConfig
	Fixes  []FixRule
}

func (p *Primary) Name() string { return "primary" }

func (p *Primary) Run(ctx context.Context, attempt common.RenderAttempt) StageResult {
	cfg := p.Config
	logger := log.WithFields(logrus.Fields{"run_id": attempt.RunID, "stage": p.Name()})

	if attempt.SceneName == "" {
		return fallback("no scene to render")
	}
	bin, err := p.Runner.LookPath(cfg.Render.RendererBin)
	if err != nil {
		return fallback("renderer unavailable: %v", err)
	}

	script, err := p.prepareScript(attempt)
	if err != nil {
		return fallback("prepare script: %v", err)
	}
	if script != attempt.ScriptPath {
		defer common.RemoveFiles(script)
	}

	quality := attempt.Quality
	if quality == "" {
		quality = cfg.Render.Quality
	}
	flag, ok := common.QualityFlags[strings.ToLower(quality)]
	if !ok {
		flag = "l"
	}

	mediaDir := filepath.Join(cfg.Paths.WorkDir, "media_"+attempt.RunID)
	defer os.RemoveAll(mediaDir)
	args := RenderArgs(flag, mediaDir, script, attempt.SceneName)
	logger.Infof("executing %s %s", bin, strings.Join(args, " "))
	if _, err := p.Runner.Run(ctx, cfg.Render.Timeout, bin, args...); err != nil {
		return fallback("renderer failed: %v", err)
	}

	found, ok := DiscoverVideo(mediaDir, script, attempt.SceneName, flag)
	if !ok {
		return fallback("renderer exited cleanly but no video was found under %s", mediaDir)
	}
	// the media tree is removed on return, so the video moves next to the other run files
	video := common.RunFile(cfg.Paths.WorkDir, attempt.RunID, attempt.SceneName, ".mp4")
	if err := os.Rename(found, video); err != nil {
		return fallback("move rendered video: %v", err)
	}
	return StageResult{
		Outcome:  OK,
		Artifact: &common.VideoArtifact{Path: video, Fidelity: common.FidelityPrimary},
	}
}

// prepareScript writes the auto-fixed copy of the script into the work dir and returns its path.
// The input script itself is never modified.
func (p *Primary) prepareScript(attempt common.RenderAttempt) (string, error) {
	if !p.Config.Render.AutoFix {
		return attempt.ScriptPath, nil
	}
	data, err := os.ReadFile(attempt.ScriptPath)
	if err != nil {
		return "", err
	}
	fixed, fired := ApplyFixes(string(data), attempt.SceneName, p.Fixes)
	if len(fired) == 0 {
		return attempt.ScriptPath, nil
	}
	log.WithField("run_id", attempt.RunID).Infof("applied script fixes: %s", strings.Join(fired, ", "))

	if err := os.MkdirAll(p.Config.Paths.WorkDir, 0755); err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(filepath.Base(attempt.ScriptPath), filepath.Ext(attempt.ScriptPath))
	out := common.RunFile(p.Config.Paths.WorkDir, attempt.RunID, stem, ".py")
	if err := os.WriteFile(out, []byte(fixed), 0644); err != nil {
		return "", err
	}
	return out, nil
}

// RenderArgs builds the renderer command line.
func RenderArgs(qualityFlag, mediaDir, script, scene string) []string {
	return []string{
		"render",
		"-q", qualityFlag,
		"--disable_caching",
		"--media_dir", mediaDir,
		script,
		scene,
	}
}

// qualityDirs maps renderer -q flags to the resolution directory they write into.
var qualityDirs = map[string]string{
	"l": "480p15",
	"m": "720p30",
	"h": "1080p60",
}

// DiscoverVideo finds the rendered video: the scene file in the directory of the requested
// quality, then a file named after the scene anywhere in the tree, then any mp4. Partial movie
// fragments are ignored.
func DiscoverVideo(mediaDir, script, scene, qualityFlag string) (string, bool) {
	stem := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	if res, ok := qualityDirs[qualityFlag]; ok {
		standard := filepath.Join(mediaDir, "videos", stem, res, scene+".mp4")
		if common.FileNonEmpty(standard) {
			return standard, true
		}
	}

	var named, first string
	filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "partial_movie_files" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".mp4") || !common.FileNonEmpty(path) {
			return nil
		}
		if named == "" && d.Name() == scene+".mp4" {
			named = path
		}
		if first == "" {
			first = path
		}
		return nil
	})
	if named != "" {
		return named, true
	}
	if first != "" {
		return first, true
	}
	return "", false
}

func fallback(format string, args ...interface{}) StageResult {
	return StageResult{Outcome: Fallback, Reason: fmt.Sprintf(format, args...)}
}
