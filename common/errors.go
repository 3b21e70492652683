package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoArtifact means every render fallback stage failed.
	ErrNoArtifact = errors.New("no video artifact produced")
	// ErrSceneNotFound means the requested scene is not declared in the script.
	ErrSceneNotFound = errors.New("scene not found in script")
	// ErrToolMissing means an external binary is not installed.
	ErrToolMissing = errors.New("external tool not available")
)

// ToolError is an external tool failure: non-zero exit, timeout or spawn error.
type ToolError struct {
	Tool     string
	Args     []string
	Output   string
	TimedOut bool
	Err      error
}

func (e *ToolError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Tool)
	}
	out := strings.TrimSpace(e.Output)
	if len(out) > 400 {
		out = "..." + out[len(out)-400:]
	}
	if out == "" {
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s failed: %v, output: %s", e.Tool, e.Err, out)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
