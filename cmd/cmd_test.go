package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrator/common"
)

const demoScript = `from manim import *

class Demo(Scene):
    def construct(self):
        # Start with the unit circle
        self.play(Create(circle))
        self.wait(2)
        self.play(FadeOut(circle))
        self.wait()
`

func writeScript(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "demo.py")
	if err := os.WriteFile(path, []byte(demoScript), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTimelineCommand(t *testing.T) {
	out, err := run(t, "timeline", writeScript(t))
	if err != nil {
		t.Fatalf("timeline: %v\n%s", err, out)
	}
	var report timelineReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if report.Scene != "Demo" || len(report.Steps) != 2 || len(report.Segments) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.TotalWait != 3 {
		t.Errorf("total wait = %v, want 3", report.TotalWait)
	}
	if report.Segments[0].Text != "Start with the unit circle" || report.Segments[1].Text != "Fading out circle" {
		t.Errorf("segments = %+v", report.Segments)
	}
}

func TestAnnotateCommand(t *testing.T) {
	path := writeScript(t)
	dst := filepath.Join(t.TempDir(), "annotated.py")

	out, err := run(t, "annotate", path, "Demo", "--output", dst)
	if err != nil {
		t.Fatalf("annotate: %v\n%s", err, out)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# Fading out circle") {
		t.Errorf("annotated script missing inferred comment:\n%s", data)
	}
	if !strings.Contains(out, "wrote "+dst) {
		t.Errorf("output = %q", out)
	}
}

func TestReadScriptWithoutScene(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.py")
	os.WriteFile(path, []byte("print('hello')\n"), 0644)

	if _, _, err := readScript([]string{path}); !errors.Is(err, common.ErrSceneNotFound) {
		t.Errorf("err = %v, want ErrSceneNotFound", err)
	}
	if _, scene, err := readScript([]string{path, "Given"}); err != nil || scene != "Given" {
		t.Errorf("explicit scene: %q, %v", scene, err)
	}
}

func TestRenderRequestWithoutScene(t *testing.T) {
	if req := renderRequest([]string{"plain.py"}); req.ScriptPath != "plain.py" || req.SceneName != "" {
		t.Errorf("render should defer scene discovery to the pipeline: %+v", req)
	}
	if req := renderRequest([]string{"wave.py", "Wave"}); req.SceneName != "Wave" {
		t.Errorf("explicit scene dropped: %+v", req)
	}
}
