package timeline

import (
	"strconv"
	"strings"

	"narrator/common"
)

const (
	defaultWait = common.DefaultWait

	// MaterialPause is the shortest unannotated standalone pause worth narrating.
	MaterialPause = 2.0
)

var log = common.Logger("timeline")

// Extract turns the named scene of an animation script into ordered timeline steps.
// A missing scene yields an empty slice.
func Extract(script, scene string) []common.TimelineStep {
	start, end, ok := SceneBounds(script, scene)
	if !ok {
		log.WithField("scene", scene).Warn("scene not found, no timeline extracted")
		return []common.TimelineStep{}
	}
	body := script[start:end]
	calls := ScanCalls(body)

	hasTrigger := false
	for _, c := range calls {
		if c.Kind == TriggerCall {
			hasTrigger = true
			break
		}
	}

	steps := make([]common.TimelineStep, 0, len(calls))
	for i := 0; i < len(calls); i++ {
		c := calls[i]
		switch c.Kind {
		case TriggerCall:
			step := common.TimelineStep{
				Action:     normalizeArgs(c.Args),
				Annotation: c.Annotation,
				Wait:       defaultWait,
				Offset:     c.Start,
			}
			if i+1 < len(calls) && ConsumesPause(body, c, calls[i+1]) {
				step.Wait = PauseDuration(calls[i+1].Args)
				i++
			}
			steps = append(steps, step)

		case PauseCall:
			wait := PauseDuration(c.Args)
			if hasTrigger && c.Annotation == "" && wait < MaterialPause {
				continue
			}
			steps = append(steps, common.TimelineStep{
				Action:     common.ActionWait,
				Annotation: c.Annotation,
				Wait:       wait,
				Offset:     c.Start,
			})
		}
	}

	for i := range steps {
		steps[i].Index = i
	}
	log.WithField("scene", scene).Debugf("extracted %d steps from %d calls", len(steps), len(calls))
	return steps
}

// TotalWait sums the time budget of every step.
func TotalWait(steps []common.TimelineStep) float64 {
	var total float64
	for _, s := range steps {
		total += s.Wait
	}
	return total
}

func normalizeArgs(args string) string {
	return strings.Join(strings.Fields(args), " ")
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
}
