package narration

import (
	"context"
	"fmt"
	"regexp"

	"narrator/common"
)

// Filler is spoken for steps with neither an annotation nor a recognisable action.
const Filler = "Continuing with the animation"

// Hints steer text generation. The heuristic planner ignores them.
type Hints struct {
	Topic string
	Level string
}

// Strategy produces one segment per step, in step order.
type Strategy interface {
	Segments(ctx context.Context, steps []common.TimelineStep, hints Hints) []common.NarrationSegment
}

// Rule infers narration from a trigger call's arguments.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Format  func(match []string) string
}

// DefaultRules is evaluated in order; the first match wins.
var DefaultRules = []Rule{
	{
		Name:    "text-label",
		Pattern: regexp.MustCompile(`\bText\(\s*['"]([^'"]+)['"]`),
		Format:  func(m []string) string { return m[1] },
	},
	{
		Name:    "create",
		Pattern: regexp.MustCompile(`\bCreate\(\s*(\w+)`),
		Format:  func(m []string) string { return "Creating " + m[1] },
	},
	{
		Name:    "write",
		Pattern: regexp.MustCompile(`\bWrite\(\s*(\w+)`),
		Format:  func(m []string) string { return "Writing " + m[1] },
	},
	{
		Name:    "fade-in",
		Pattern: regexp.MustCompile(`\bFadeIn\(\s*(\w+)`),
		Format:  func(m []string) string { return "Fading in " + m[1] },
	},
	{
		Name:    "fade-out",
		Pattern: regexp.MustCompile(`\bFadeOut\(\s*(\w+)`),
		Format:  func(m []string) string { return "Fading out " + m[1] },
	},
	{
		Name:    "transform",
		Pattern: regexp.MustCompile(`\bTransform\(\s*(\w+)\s*,\s*(\w+)`),
		Format:  func(m []string) string { return fmt.Sprintf("Transforming %s into %s", m[1], m[2]) },
	},
}

// Planner assigns narration from annotations and the rule table.
type Planner struct {
	rules []Rule
}

func NewPlanner(rules ...Rule) *Planner {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Planner{rules: rules}
}

// Plan returns exactly one segment per step, in the same order.
func (p *Planner) Plan(steps []common.TimelineStep) []common.NarrationSegment {
	segments := make([]common.NarrationSegment, 0, len(steps))
	for _, step := range steps {
		segments = append(segments, p.segmentFor(step))
	}
	return segments
}

func (p *Planner) Segments(_ context.Context, steps []common.TimelineStep, _ Hints) []common.NarrationSegment {
	return p.Plan(steps)
}

func (p *Planner) segmentFor(step common.TimelineStep) common.NarrationSegment {
	seg := common.NarrationSegment{
		StepIndex: step.Index,
		Target:    step.Wait,
	}
	switch {
	case step.Annotation != "":
		seg.Text = step.Annotation
		seg.Source = common.SourceAnnotation
	default:
		if text, ok := p.Infer(step); ok {
			seg.Text = text
			seg.Source = common.SourceInferred
		} else {
			seg.Text = Filler
			seg.Source = common.SourceFiller
		}
	}
	return seg
}

// Infer applies the rule table to a trigger step. Standalone pauses never match.
func (p *Planner) Infer(step common.TimelineStep) (string, bool) {
	if step.Standalone() {
		return "", false
	}
	for _, r := range p.rules {
		if m := r.Pattern.FindStringSubmatch(step.Action); m != nil {
			return r.Format(m), true
		}
	}
	return "", false
}
