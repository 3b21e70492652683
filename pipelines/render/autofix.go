package render

import (
	"regexp"
	"strings"

	"narrator/pipelines/timeline"
)

// FixRule is a named, idempotent rewrite of a renderer script. Apply reports whether it changed anything.
type FixRule struct {
	Name  string
	Apply func(script, scene string) (string, bool)
}

const manimImport = "from manim import *"

var (
	randomPointPattern = regexp.MustCompile(`(^|[^.\w])random\.uniform\(np\.array\(\[([-\d.]+),\s*([-\d.]+)(?:,\s*[-\d.]+)?\]\)(?:,\s*np\.array\(\[[-\d.]+,\s*[-\d.]+(?:,\s*[-\d.]+)?\]\))?\)`)
	numpyUse           = regexp.MustCompile(`\bnp\.`)
	numpyImport        = regexp.MustCompile(`(?m)^\s*import numpy as np\b`)
	bareRandomUse      = regexp.MustCompile(`(^|[^.\w])random\.`)
	randomImport       = regexp.MustCompile(`(?m)^\s*import random\b`)
	manimImportLine    = regexp.MustCompile(`(?m)^from manim import[^\n]*\n?`)
	constructDecl      = regexp.MustCompile(`(?m)^([ \t]*)def construct\(self\)[^\n]*:[ \t]*\n`)
	floatRangePattern  = regexp.MustCompile(`\brange\(([^()]*\d\.\d*[^()]*)\)`)
	yRangeTrailing     = regexp.MustCompile(`\s*,\s*y_range\s*=\s*\[[^\]]*\]`)
	yRangeLeading      = regexp.MustCompile(`y_range\s*=\s*\[[^\]]*\]\s*,?\s*`)
)

// DefaultFixes runs in this order. manim-import goes first so the import rules have an anchor line.
var DefaultFixes = []FixRule{
	{Name: "manim-import", Apply: fixManimImport},
	{Name: "random-point-generation", Apply: fixRandomPoints},
	{Name: "numpy-import", Apply: fixNumpyImport},
	{Name: "random-import", Apply: fixRandomImport},
	{Name: "random-seed", Apply: fixRandomSeed},
	{Name: "float-range", Apply: fixFloatRange},
	{Name: "function-graph-y-range", Apply: fixFunctionGraphYRange},
	{Name: "scene-base-class", Apply: fixSceneBaseClass},
}

// ApplyFixes runs the rules until none fires (at most three passes, since one rule can
// enable another) and returns the fixed script with the names of the rules that fired.
func ApplyFixes(script, scene string, rules []FixRule) (string, []string) {
	var fired []string
	seen := map[string]bool{}
	for pass := 0; pass < 3; pass++ {
		changed := false
		for _, r := range rules {
			out, ok := r.Apply(script, scene)
			if !ok {
				continue
			}
			script = out
			changed = true
			if !seen[r.Name] {
				seen[r.Name] = true
				fired = append(fired, r.Name)
			}
		}
		if !changed {
			break
		}
	}
	return script, fired
}

func fixManimImport(script, _ string) (string, bool) {
	if manimImportLine.MatchString(script) {
		return script, false
	}
	return manimImport + "\n" + script, true
}

func fixRandomPoints(script, _ string) (string, bool) {
	if !randomPointPattern.MatchString(script) {
		return script, false
	}
	return randomPointPattern.ReplaceAllString(script, "${1}np.random.uniform($2, $3)"), true
}

// insertAfterManimImport places line directly below the manim import, or at the top.
func insertAfterManimImport(script, line string) string {
	loc := manimImportLine.FindStringIndex(script)
	if loc == nil {
		return line + "\n" + script
	}
	head := script[:loc[1]]
	if !strings.HasSuffix(head, "\n") {
		head += "\n"
	}
	return head + line + "\n" + script[loc[1]:]
}

func fixNumpyImport(script, _ string) (string, bool) {
	if !numpyUse.MatchString(script) || numpyImport.MatchString(script) {
		return script, false
	}
	return insertAfterManimImport(script, "import numpy as np"), true
}

func fixRandomImport(script, _ string) (string, bool) {
	if !bareRandomUse.MatchString(script) || randomImport.MatchString(script) {
		return script, false
	}
	return insertAfterManimImport(script, "import random"), true
}

func fixRandomSeed(script, scene string) (string, bool) {
	if !strings.Contains(script, "np.random") || strings.Contains(script, "np.random.seed") {
		return script, false
	}
	start, end, ok := timeline.SceneBounds(script, scene)
	if !ok {
		return script, false
	}
	loc := constructDecl.FindStringSubmatchIndex(script[start:end])
	if loc == nil {
		return script, false
	}
	at := start + loc[1]
	indent := script[start+loc[2]:start+loc[3]] + "    "
	// follow the indentation of the first body line when there is one
	rest := script[at:end]
	if nl := strings.IndexByte(rest, '\n'); nl > 0 {
		first := rest[:nl]
		if trimmed := strings.TrimLeft(first, " \t"); trimmed != "" {
			indent = first[:len(first)-len(trimmed)]
		}
	}
	return script[:at] + indent + "np.random.seed(42)\n" + script[at:], true
}

func fixFloatRange(script, _ string) (string, bool) {
	if !floatRangePattern.MatchString(script) {
		return script, false
	}
	return floatRangePattern.ReplaceAllString(script, "np.arange($1)"), true
}

func fixFunctionGraphYRange(script, _ string) (string, bool) {
	const call = "FunctionGraph("
	var sb strings.Builder
	changed := false
	pos := 0
	for {
		idx := strings.Index(script[pos:], call)
		if idx < 0 {
			break
		}
		open := pos + idx + len(call) - 1
		closeIdx := timeline.MatchParen(script, open)
		args := script[open+1 : closeIdx]
		fixed := yRangeTrailing.ReplaceAllString(args, "")
		if fixed == args {
			fixed = yRangeLeading.ReplaceAllString(args, "")
		}
		sb.WriteString(script[pos : open+1])
		sb.WriteString(fixed)
		if fixed != args {
			changed = true
		}
		pos = closeIdx
		if pos >= len(script) {
			break
		}
	}
	if !changed {
		return script, false
	}
	sb.WriteString(script[pos:])
	return sb.String(), true
}

func fixSceneBaseClass(script, scene string) (string, bool) {
	bare := regexp.MustCompile(`(?m)^class\s+` + regexp.QuoteMeta(scene) + `\s*:`)
	if !bare.MatchString(script) {
		return script, false
	}
	return bare.ReplaceAllString(script, "class "+scene+"(Scene):"), true
}
