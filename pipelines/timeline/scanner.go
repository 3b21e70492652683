package timeline

import (
	"regexp"
	"strings"
)

// CallKind distinguishes animation triggers from pauses.
type CallKind int

const (
	TriggerCall CallKind = iota
	PauseCall
)

// Call is one self.play(...) or self.wait(...) occurrence inside a scene body.
type Call struct {
	Kind       CallKind
	Args       string // raw text between the outer parentheses
	Start      int    // offset of "self."
	End        int    // offset just past the closing parenthesis
	LineStart  int    // offset of the first byte of the call's line
	Indent     string
	Annotation string
}

var (
	callPattern       = regexp.MustCompile(`self\.(play|wait)\s*\(`)
	topLevelClass     = regexp.MustCompile(`(?m)^class\s+\w+`)
	sceneDeclPattern  = regexp.MustCompile(`(?m)^class\s+(\w+)\s*(\(([^)]*)\))?\s*:`)
	durationLiteral   = regexp.MustCompile(`(?:^|[^\w.])([-+]?(?:\d+\.\d*|\.\d+|\d+))`)
	whitespaceOnlyGap = regexp.MustCompile(`^\s*$`)
)

// SceneBounds returns the byte range of a scene class body inside script: from the end of the
// declaration line to the next top-level class declaration or end of text.
func SceneBounds(script, scene string) (start, end int, ok bool) {
	decl := regexp.MustCompile(`(?m)^class\s+` + regexp.QuoteMeta(scene) + `\s*(\([^)]*\))?\s*:`)
	loc := decl.FindStringIndex(script)
	if loc == nil {
		return 0, 0, false
	}
	start = loc[1]
	end = len(script)
	if next := topLevelClass.FindStringIndex(script[start:]); next != nil {
		end = start + next[0]
	}
	return start, end, true
}

// FindScenes lists top-level classes that look like scenes: a base list naming a Scene
// type, or no base list at all.
func FindScenes(script string) []string {
	var scenes []string
	for _, m := range sceneDeclPattern.FindAllStringSubmatch(script, -1) {
		bases := m[3]
		if m[2] == "" || strings.Contains(bases, "Scene") {
			scenes = append(scenes, m[1])
		}
	}
	return scenes
}

// ScanCalls finds trigger and pause calls in body, in source order. Calls inside
// comments are skipped and arguments may span several lines.
func ScanCalls(body string) []Call {
	var calls []Call
	pos := 0
	for pos < len(body) {
		loc := callPattern.FindStringSubmatchIndex(body[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		open := pos + loc[1] - 1
		kind := TriggerCall
		if body[pos+loc[2]:pos+loc[3]] == "wait" {
			kind = PauseCall
		}

		lineStart := strings.LastIndexByte(body[:start], '\n') + 1
		if inComment(body[lineStart:start]) || isAttributeTail(body, start) {
			pos = open + 1
			continue
		}

		closeIdx := MatchParen(body, open)
		call := Call{
			Kind:      kind,
			Args:      body[open+1 : closeIdx],
			Start:     start,
			End:       closeIdx + 1,
			LineStart: lineStart,
		}
		if closeIdx == len(body) {
			call.End = len(body)
		}
		prefix := body[lineStart:start]
		if strings.TrimSpace(prefix) == "" {
			call.Indent = prefix
			call.Annotation = precedingComment(body, lineStart)
		}
		calls = append(calls, call)
		pos = call.End
	}
	return calls
}

// ConsumesPause reports whether pause directly follows trigger with only whitespace
// between them, making the pause the trigger's wait.
func ConsumesPause(body string, trigger, pause Call) bool {
	return trigger.Kind == TriggerCall && pause.Kind == PauseCall &&
		pause.Start >= trigger.End && whitespaceOnlyGap.MatchString(body[trigger.End:pause.Start])
}

// isAttributeTail rejects matches like "myself.play(" where "self" is not the receiver.
func isAttributeTail(body string, start int) bool {
	if start == 0 {
		return false
	}
	c := body[start-1]
	return c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// inComment reports whether a line prefix has an unquoted '#'.
func inComment(prefix string) bool {
	var quote byte
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '#':
			return true
		}
	}
	return false
}

// MatchParen returns the index of the parenthesis closing the one at open, skipping string
// literals and comments. An unbalanced call runs to the end of body.
func MatchParen(body string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(body); i++ {
		c := body[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '#':
			nl := strings.IndexByte(body[i:], '\n')
			if nl < 0 {
				return len(body)
			}
			i += nl
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(body)
}

// precedingComment returns the text of a '#' comment on the line directly above lineStart.
func precedingComment(body string, lineStart int) string {
	if lineStart == 0 {
		return ""
	}
	prevEnd := lineStart - 1
	prevStart := strings.LastIndexByte(body[:prevEnd], '\n') + 1
	line := strings.TrimSpace(body[prevStart:prevEnd])
	if !strings.HasPrefix(line, "#") {
		return ""
	}
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// PauseDuration reads the first numeric literal of a pause call's arguments. Missing or
// non-positive values fall back to the default wait.
func PauseDuration(args string) float64 {
	m := durationLiteral.FindStringSubmatch(args)
	if m == nil {
		return defaultWait
	}
	v, err := parseFloat(m[1])
	if err != nil || v <= 0 {
		return defaultWait
	}
	return v
}
