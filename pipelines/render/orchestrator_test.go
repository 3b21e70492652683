package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"narrator/common"
)

// fakeRunner decides per tool invocation whether it succeeds. A successful ffmpeg call writes
// its last argument (the output file); a successful renderer call writes the scene video.
type fakeRunner struct {
	mu        sync.Mutex
	missing   map[string]bool
	fail      func(name string, args []string) bool
	writeNone bool
	calls     [][]string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.missing[name] {
		return "", fmt.Errorf("%s: %w", name, common.ErrToolMissing)
	}
	return "/usr/bin/" + name, nil
}

func (f *fakeRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.fail != nil && f.fail(name, args) {
		return []byte("boom"), &common.ToolError{Tool: name, Args: args, Output: "boom", Err: errors.New("exit status 1")}
	}
	if f.writeNone {
		return nil, nil
	}
	if strings.HasSuffix(name, "manim") {
		media, script, scene := args[5], args[6], args[7]
		stem := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
		out := filepath.Join(media, "videos", stem, "480p15", scene+".mp4")
		os.MkdirAll(filepath.Dir(out), 0755)
		return nil, os.WriteFile(out, []byte("video"), 0644)
	}
	return nil, os.WriteFile(args[len(args)-1], []byte("video"), 0644)
}

func (f *fakeRunner) ran(tool string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasSuffix(c[0], tool) {
			n++
		}
	}
	return n
}

type fakeSlides struct {
	err    error
	chunks []string
}

func (f *fakeSlides) Render(_ context.Context, chunks []string, dir string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.chunks = chunks
	var out []string
	for i := range chunks {
		p := filepath.Join(dir, fmt.Sprintf("slide_%03d.png", i))
		if err := os.WriteFile(p, []byte("png"), 0644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

const brokenScript = `# Plotting a parabola and its vertex for students.
from manim import *

class Parabola(Scene):
    def construct(self):
        self.play(Create(graph))
`

func setup(t *testing.T) (*common.PipelineConfig, common.RenderAttempt) {
	cfg := common.DefaultConfig()
	dir := t.TempDir()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	script := filepath.Join(dir, "scene.py")
	if err := os.WriteFile(script, []byte(brokenScript), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg, common.RenderAttempt{ScriptPath: script, SceneName: "Parabola", Quality: "low", RunID: "r1"}
}

func TestRenderPrimarySucceeds(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{}
	o := New(cfg, runner, &fakeSlides{}, nil)

	video, trace, err := o.Render(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if video.Fidelity != common.FidelityPrimary || !common.FileNonEmpty(video.Path) {
		t.Errorf("unexpected artifact %+v", video)
	}
	if trace.Final() != PrimaryOK || len(trace) != 1 {
		t.Errorf("unexpected trace %v", trace.Strings())
	}
	want := []string{"/usr/bin/manim", "render", "-q", "l", "--disable_caching", "--media_dir"}
	if got := runner.calls[0][:6]; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("renderer invoked as %v", runner.calls[0])
	}
	if got := workDirEntries(t, cfg); len(got) != 1 || got[0] != filepath.Base(video.Path) {
		t.Errorf("work dir should hold only the rendered video, got %v", got)
	}
}

func TestRenderPrimaryCleansFixedScript(t *testing.T) {
	cfg, attempt := setup(t)
	// range() over floats is rewritten, so the renderer runs on a copy in the work dir
	script := strings.Replace(brokenScript, "self.play(Create(graph))", "for x in range(0, 1, 0.5):\n            self.play(Create(graph))", 1)
	if err := os.WriteFile(attempt.ScriptPath, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	video, _, err := New(cfg, runner, &fakeSlides{}, nil).Render(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if rendered := runner.calls[0][7]; rendered == attempt.ScriptPath {
		t.Fatalf("expected the renderer to run on a fixed copy, got %s", rendered)
	}
	if got := workDirEntries(t, cfg); len(got) != 1 || got[0] != filepath.Base(video.Path) {
		t.Errorf("fixed script or media tree left behind: %v", got)
	}
}

func workDirEntries(t *testing.T, cfg *common.PipelineConfig) []string {
	entries, err := os.ReadDir(cfg.Paths.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRenderPrimaryFailsFallsBackToSlideshow(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{fail: func(name string, _ []string) bool { return strings.HasSuffix(name, "manim") }}
	slides := &fakeSlides{}
	o := New(cfg, runner, slides, nil)

	video, trace, err := o.Render(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if video.Fidelity != common.FidelitySlideshow {
		t.Errorf("fidelity = %s, want slideshow", video.Fidelity)
	}
	if _, err := os.Stat(video.Path); err != nil {
		t.Errorf("slideshow file missing: %v", err)
	}
	if trace.Final() != SlideshowOK || trace[0].To != AttemptSlideshow {
		t.Errorf("unexpected trace %v", trace.Strings())
	}
	if slides.chunks[0] != cfg.Render.Title || len(slides.chunks) != 4 {
		t.Errorf("slides = %q", slides.chunks)
	}
	if !strings.HasPrefix(slides.chunks[1], "Plotting a parabola") {
		t.Errorf("first content slide should come from the script comments: %q", slides.chunks[1])
	}
	if got := workDirEntries(t, cfg); len(got) != 1 || got[0] != filepath.Base(video.Path) {
		t.Errorf("slide images left behind: %v", got)
	}
}

func TestRenderMissingRendererFallsBack(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{missing: map[string]bool{"manim": true}}
	o := New(cfg, runner, &fakeSlides{}, nil)

	video, trace, err := o.Render(context.Background(), attempt)
	if err != nil || video.Fidelity != common.FidelitySlideshow {
		t.Fatalf("got %+v, %v", video, err)
	}
	if runner.ran("manim") != 0 {
		t.Error("renderer must not run when it is not installed")
	}
	if !strings.Contains(trace[0].Reason, "renderer unavailable") {
		t.Errorf("reason = %q", trace[0].Reason)
	}
}

func TestRenderFallsToMinimal(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{fail: func(name string, _ []string) bool { return strings.HasSuffix(name, "manim") }}
	o := New(cfg, runner, &fakeSlides{err: errors.New("no fonts")}, nil)

	video, trace, err := o.Render(context.Background(), attempt)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if video.Fidelity != common.FidelityMinimal || !common.FileNonEmpty(video.Path) {
		t.Errorf("unexpected artifact %+v", video)
	}
	if trace.Final() != MinimalOK || len(trace) != 3 {
		t.Errorf("unexpected trace %v", trace.Strings())
	}
}

func TestRenderMinimalSecondAttempt(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{fail: func(name string, args []string) bool {
		if strings.HasSuffix(name, "manim") {
			return true
		}
		for _, a := range args {
			if strings.HasPrefix(a, "drawtext=") || a == "concat" {
				return true
			}
		}
		return false
	}}
	o := New(cfg, runner, &fakeSlides{}, nil)

	video, _, err := o.Render(context.Background(), attempt)
	if err != nil || video.Fidelity != common.FidelityMinimal {
		t.Fatalf("got %+v, %v", video, err)
	}
	last := runner.calls[len(runner.calls)-1]
	if !strings.Contains(strings.Join(last, " "), "color=c=blue:s=640x480:d=5") {
		t.Errorf("bare card not attempted: %v", last)
	}
}

func TestRenderAllStagesFail(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{fail: func(string, []string) bool { return true }}
	o := New(cfg, runner, &fakeSlides{}, nil)

	video, trace, err := o.Render(context.Background(), attempt)
	if !errors.Is(err, common.ErrNoArtifact) {
		t.Fatalf("err = %v, want ErrNoArtifact", err)
	}
	if video.Path != "" {
		t.Errorf("no path expected, got %q", video.Path)
	}
	if trace.Final() != Failed {
		t.Errorf("final state %s", trace.Final())
	}
}

func TestRenderSuccessWithoutFileIsDemoted(t *testing.T) {
	cfg, attempt := setup(t)
	runner := &fakeRunner{writeNone: true}
	o := New(cfg, runner, &fakeSlides{}, nil)

	_, trace, err := o.Render(context.Background(), attempt)
	if !errors.Is(err, common.ErrNoArtifact) {
		t.Fatalf("a stage that writes nothing must not count as success, trace %v", trace.Strings())
	}
}

type zeroFrames struct{}

func (zeroFrames) Frames(string) (int, error) { return 0, nil }

func TestRenderProbeRejectsUndecodableVideo(t *testing.T) {
	cfg, attempt := setup(t)
	o := New(cfg, &fakeRunner{}, &fakeSlides{}, zeroFrames{})

	_, trace, err := o.Render(context.Background(), attempt)
	if !errors.Is(err, common.ErrNoArtifact) || len(trace) != 3 {
		t.Errorf("expected every stage rejected by the probe, trace %v", trace.Strings())
	}
}

func TestChunksAndDuration(t *testing.T) {
	words := strings.Repeat("word ", 130)
	chunks := Chunks(words, "Title", "pad")
	// 130 words / 5 = 26 words per slide -> 5 content slides
	if len(chunks) != 6 || chunks[0] != "Title" {
		t.Fatalf("got %d chunks", len(chunks))
	}
	if n := len(strings.Fields(chunks[1])); n != 26 {
		t.Errorf("words per slide = %d, want 26", n)
	}

	short := Chunks("just a few words", "Title", "pad")
	if len(short) != 4 || short[2] != "pad" || short[3] != "pad" {
		t.Errorf("short text should pad to three content slides: %q", short)
	}

	if d := SlideDuration(strings.Repeat("x", 100), 4); d != 2.5 {
		t.Errorf("short explanation: %v, want 10s over 4 slides", d)
	}
	if d := SlideDuration(strings.Repeat("x", 5000), 5); d != 6 {
		t.Errorf("long explanation: %v, want 30s over 5 slides", d)
	}
}

func TestExplanation(t *testing.T) {
	script := "#!/usr/bin/env python\n# Circles have constant curvature.\nx = 1  # radius\n"
	if got := Explanation(script, "default"); got != "Circles have constant curvature. radius" {
		t.Errorf("Explanation = %q", got)
	}
	if got := Explanation("# hi\n", "default"); got != "default" {
		t.Errorf("short comments should use the default, got %q", got)
	}
}

func TestDiscoverVideoOrder(t *testing.T) {
	media := t.TempDir()
	write := func(rel string) string {
		p := filepath.Join(media, rel)
		os.MkdirAll(filepath.Dir(p), 0755)
		os.WriteFile(p, []byte("v"), 0644)
		return p
	}
	write("videos/scene/480p15/partial_movie_files/Demo/Demo.mp4")
	other := write("videos/scene/480p15/Other.mp4")

	if got, ok := DiscoverVideo(media, "scene.py", "Demo", "l"); !ok || got != other {
		t.Errorf("expected the any-mp4 fallback, got %q", got)
	}
	named := write("videos/scene/720p30/Demo.mp4")
	if got, _ := DiscoverVideo(media, "scene.py", "Demo", "l"); got != named {
		t.Errorf("expected the scene-named file, got %q", got)
	}
	low := write("videos/scene/480p15/Demo.mp4")
	high := write("videos/scene/1080p60/Demo.mp4")
	for flag, want := range map[string]string{"l": low, "m": named, "h": high} {
		if got, _ := DiscoverVideo(media, "scene.py", "Demo", flag); got != want {
			t.Errorf("quality %s: got %q, want %q", flag, got, want)
		}
	}
	if _, ok := DiscoverVideo(t.TempDir(), "scene.py", "Demo", "l"); ok {
		t.Error("empty media dir should find nothing")
	}
}
