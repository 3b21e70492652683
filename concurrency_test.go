package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"narrator/common"
	"narrator/pipelines/narrated"
)

const concurrencyScript = `from manim import *

class Pulse(Scene):
    def construct(self):
        # A circle appears in the middle of the frame
        circle = Circle()
        self.play(Create(circle))
        self.wait(2)
        self.play(FadeOut(circle))
        self.wait(1)
`

// TestConcurrentUsers runs the full pipeline for several users at once against the real tools.
func TestConcurrentUsers(t *testing.T) {
	runner := common.NewExecRunner()
	for _, tool := range []string{"manim", "ffmpeg", "ffprobe", "gtts-cli"} {
		if _, err := runner.LookPath(tool); err != nil {
			t.Skipf("Skipping concurrency test: %s not installed", tool)
		}
	}

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "pulse.py")
	if err := os.WriteFile(scriptPath, []byte(concurrencyScript), 0644); err != nil {
		t.Fatal(err)
	}

	concurrentUsers := 2

	var wg sync.WaitGroup
	errs := make(chan error, concurrentUsers)
	start := time.Now()

	for i := 0; i < concurrentUsers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			cfg := common.DefaultConfig()
			cfg.Paths.WorkDir = filepath.Join(dir, fmt.Sprintf("work_%d", id))
			cfg.Paths.OutputDir = filepath.Join(dir, fmt.Sprintf("output_%d", id))
			cfg.Storage.LocalDir = filepath.Join(dir, fmt.Sprintf("store_%d", id))

			pipeline, closeFn, err := narrated.New(context.Background(), cfg, runner)
			if err != nil {
				errs <- fmt.Errorf("user %d: %w", id, err)
				return
			}
			defer closeFn()

			res, err := pipeline.Process(context.Background(), narrated.Request{ScriptPath: scriptPath})
			if err != nil {
				errs <- fmt.Errorf("user %d: %w", id, err)
				return
			}
			if !common.FileNonEmpty(res.Deliverable.Path) {
				errs <- fmt.Errorf("user %d: deliverable %s missing", id, res.Deliverable.Path)
				return
			}
			t.Logf("[User %d] %s video, narrated=%v, trace %v", id, res.Deliverable.Fidelity, res.Deliverable.Narrated, res.Trace)
		}(i)
	}

	wg.Wait()
	close(errs)
	t.Logf("Concurrency test finished in %s", time.Since(start))

	for err := range errs {
		t.Error(err)
	}
}
