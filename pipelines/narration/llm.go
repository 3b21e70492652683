package narration

import (
	"context"
	"strings"

	"narrator/common"
)

// Generator writes narration lines for a list of steps. common.GeminiClient satisfies it.
type Generator interface {
	GenerateNarration(ctx context.Context, steps []common.TimelineStep, topic, level string) ([]string, error)
}

// LLMPlanner asks a Generator for narration and falls back to the heuristic planner.
// Annotated steps keep their annotation verbatim.
type LLMPlanner struct {
	gen      Generator
	fallback *Planner
	level    string
}

func NewLLMPlanner(gen Generator, fallback *Planner, level string) *LLMPlanner {
	if fallback == nil {
		fallback = NewPlanner()
	}
	return &LLMPlanner{gen: gen, fallback: fallback, level: level}
}

func (p *LLMPlanner) Segments(ctx context.Context, steps []common.TimelineStep, hints Hints) []common.NarrationSegment {
	planned := p.fallback.Plan(steps)
	if len(steps) == 0 {
		return planned
	}

	level := hints.Level
	if level == "" {
		level = p.level
	}
	logger := log.WithField("steps", len(steps))

	lines, err := p.gen.GenerateNarration(ctx, steps, hints.Topic, level)
	if err != nil {
		logger.WithError(err).Warn("narration generation failed, using heuristic narration")
		return planned
	}
	if len(lines) < len(steps) {
		logger.Warnf("generator returned %d lines for %d steps, using heuristic narration", len(lines), len(steps))
		return planned
	}

	for i := range planned {
		if planned[i].Source == common.SourceAnnotation {
			continue
		}
		text := strings.TrimSpace(lines[i])
		if text == "" {
			continue
		}
		planned[i].Text = text
		planned[i].Source = common.SourceGenerated
	}
	return planned
}
