package narration

import (
	"regexp"
	"sort"
	"strings"

	"narrator/common"
	"narrator/pipelines/timeline"
)

// ObservePause is the comment given to a long pause when the script has no spare explanation.
const ObservePause = "Taking a moment to observe the animation"

var (
	log = common.Logger("narration")

	sentenceSplit = regexp.MustCompile(`[.!?]\s+`)
)

// TopicFromScript returns the first comment line of the script, skipping shebang and
// encoding lines.
func TopicFromScript(script string) string {
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") || isDirective(trimmed) {
			continue
		}
		if text := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); text != "" {
			return text
		}
	}
	return ""
}

// Explanations splits the script's leading comment block into sentences long enough to narrate.
func Explanations(script string) []string {
	var block []string
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && len(block) == 0 {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		if isDirective(trimmed) {
			continue
		}
		block = append(block, strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
	}

	text := strings.Join(block, " ")
	var out []string
	for _, s := range splitSentences(text) {
		if len(s) > 20 {
			out = append(out, s)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceSplit.FindAllStringIndex(text, -1) {
		// keep the terminating punctuation with its sentence
		sentences = append(sentences, strings.TrimSpace(text[last:loc[0]+1]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func isDirective(line string) bool {
	return strings.HasPrefix(line, "#!") || strings.Contains(line, "coding:") || strings.Contains(line, "coding=")
}

type insertion struct {
	at   int
	text string
}

// Annotate returns a copy of script where unannotated trigger calls of the scene carry an
// inferred narration comment and unannotated standalone pauses of at least two seconds carry
// an explanation. Pauses consumed by a trigger are left alone so the timeline is unchanged.
// Running it on its own output adds nothing.
func Annotate(script, scene string, planner *Planner) (string, int) {
	if planner == nil {
		planner = NewPlanner()
	}
	start, end, ok := timeline.SceneBounds(script, scene)
	if !ok {
		log.WithField("scene", scene).Warn("scene not found, script left unchanged")
		return script, 0
	}
	body := script[start:end]
	calls := timeline.ScanCalls(body)
	explanations := Explanations(script)
	nextExplanation := func() (string, bool) {
		if len(explanations) == 0 {
			return "", false
		}
		e := explanations[0]
		explanations = explanations[1:]
		return e, true
	}

	var inserts []insertion
	for i := 0; i < len(calls); i++ {
		c := calls[i]
		consumesNext := i+1 < len(calls) && timeline.ConsumesPause(body, c, calls[i+1])
		if c.Annotation != "" || c.LineStart+len(c.Indent) != c.Start {
			if consumesNext {
				i++
			}
			continue
		}

		var text string
		switch c.Kind {
		case timeline.TriggerCall:
			step := common.TimelineStep{Action: strings.Join(strings.Fields(c.Args), " ")}
			if inferred, ok := planner.Infer(step); ok {
				text = inferred
			} else if e, ok := nextExplanation(); ok {
				text = e
			} else {
				text = Filler
			}
			if consumesNext {
				i++
			}
		case timeline.PauseCall:
			if timeline.PauseDuration(c.Args) < timeline.MaterialPause {
				continue
			}
			if e, ok := nextExplanation(); ok {
				text = e
			} else {
				text = ObservePause
			}
		}
		inserts = append(inserts, insertion{
			at:   start + c.LineStart,
			text: c.Indent + "# " + oneLine(text) + "\n",
		})
	}

	if len(inserts) == 0 {
		return script, 0
	}
	sort.Slice(inserts, func(a, b int) bool { return inserts[a].at < inserts[b].at })

	var sb strings.Builder
	last := 0
	for _, ins := range inserts {
		sb.WriteString(script[last:ins.at])
		sb.WriteString(ins.text)
		last = ins.at
	}
	sb.WriteString(script[last:])
	return sb.String(), len(inserts)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
