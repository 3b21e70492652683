package voiceover

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"narrator/common"
)

// Request is one narration line to be spoken into Path.
type Request struct {
	Text string
	Path string
}

// Synthesizer turns text into an audio file. Format is the file extension it writes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) error
	Format() string
}

// NewSynthesizer picks the provider named in the voice config.
func NewSynthesizer(cfg *common.PipelineConfig, runner common.Runner) (Synthesizer, error) {
	v := cfg.Voice
	switch v.Provider {
	case "gtts":
		return &GTTS{Runner: runner, Bin: "gtts-cli", Lang: v.Language, TLD: tldFor(v.Accent), Slow: v.Slow, Timeout: v.Timeout}, nil
	case "edge":
		return &EdgeTTS{Runner: runner, Bin: "edge-tts", Voice: EdgeVoice(v.Language, v.Accent), Slow: v.Slow, Timeout: v.Timeout}, nil
	case "sarvam":
		if cfg.SarvamKey == "" {
			return nil, fmt.Errorf("sarvam provider selected but SARVAM_API_KEY is not set")
		}
		return NewSarvamClient(cfg.SarvamKey, v.Language), nil
	default:
		return nil, fmt.Errorf("unknown voice provider %q", v.Provider)
	}
}

// GTTS drives the gtts-cli command.
type GTTS struct {
	Runner  common.Runner
	Bin     string
	Lang    string
	TLD     string
	Slow    bool
	Timeout time.Duration
}

func (g *GTTS) Format() string { return "mp3" }

func (g *GTTS) Synthesize(ctx context.Context, req Request) error {
	args := []string{"--lang", g.Lang, "--tld", g.TLD, "--output", req.Path}
	if g.Slow {
		args = append(args, "--slow")
	}
	args = append(args, "--", req.Text)
	_, err := g.Runner.Run(ctx, g.Timeout, g.Bin, args...)
	return err
}

// tldFor maps an accent name to the Google domain gtts uses for it.
func tldFor(accent string) string {
	switch strings.ToLower(accent) {
	case "", "us", "com":
		return "com"
	case "uk", "gb":
		return "co.uk"
	case "in", "india":
		return "co.in"
	case "au":
		return "com.au"
	case "ca":
		return "ca"
	default:
		return accent
	}
}

// EdgeTTS drives the edge-tts command.
type EdgeTTS struct {
	Runner  common.Runner
	Bin     string
	Voice   string
	Slow    bool
	Timeout time.Duration
}

func (e *EdgeTTS) Format() string { return "mp3" }

func (e *EdgeTTS) Synthesize(ctx context.Context, req Request) error {
	args := []string{"--voice", e.Voice, "--text", req.Text, "--write-media", req.Path}
	if e.Slow {
		args = append(args, "--rate=-20%")
	}
	_, err := e.Runner.Run(ctx, e.Timeout, e.Bin, args...)
	return err
}

var edgeVoices = map[string]string{
	"en-us": "en-US-AriaNeural",
	"en-uk": "en-GB-SoniaNeural",
	"en-gb": "en-GB-SoniaNeural",
	"en-in": "en-IN-NeerjaNeural",
	"en-au": "en-AU-NatashaNeural",
	"hi-in": "hi-IN-SwaraNeural",
}

var edgeLanguageDefaults = map[string]string{
	"en": "en-US-AriaNeural",
	"hi": "hi-IN-SwaraNeural",
}

// EdgeVoice picks a neural voice for a language and accent, defaulting to US English.
func EdgeVoice(lang, accent string) string {
	lang = strings.ToLower(lang)
	if v, ok := edgeVoices[lang+"-"+strings.ToLower(accent)]; ok {
		return v
	}
	if v, ok := edgeLanguageDefaults[lang]; ok {
		return v
	}
	return edgeLanguageDefaults["en"]
}

var (
	boldPattern     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicPattern   = regexp.MustCompile(`\*([^*]+)\*`)
	headingPattern  = regexp.MustCompile(`#+\s*`)
	unspeakable     = regexp.MustCompile(`[^\w\s.,!?;:\-()"'=+]`)
	repeatedSpacing = regexp.MustCompile(`\s+`)
)

// CleanText strips markdown and symbols a synthesizer would read out literally.
func CleanText(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	text = unspeakable.ReplaceAllString(text, " ")
	text = repeatedSpacing.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
