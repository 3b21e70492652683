package common

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PipelineConfig is passed explicitly into every component at construction.
type PipelineConfig struct {
	Paths     PathsConfig     `yaml:"paths"`
	Render    RenderConfig    `yaml:"render"`
	Voice     VoiceConfig     `yaml:"voice"`
	Narration NarrationConfig `yaml:"narration"`
	Tools     ToolsConfig     `yaml:"tools"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"log_level"`

	// Secrets come from the environment (or .env), never from the yaml file.
	GeminiKey string `yaml:"-"`
	SarvamKey string `yaml:"-"`
}

type PathsConfig struct {
	WorkDir   string `yaml:"work_dir"`
	OutputDir string `yaml:"output_dir"`
}

type RenderConfig struct {
	RendererBin        string        `yaml:"renderer_bin"`
	Quality            string        `yaml:"quality"`
	Timeout            time.Duration `yaml:"timeout"`
	Title              string        `yaml:"title"`
	DefaultExplanation string        `yaml:"default_explanation"`
	PadSentence        string        `yaml:"pad_sentence"`
	SlideWidth         int           `yaml:"slide_width"`
	SlideHeight        int           `yaml:"slide_height"`
	MinimalColor       string        `yaml:"minimal_color"`
	MinimalFont        string        `yaml:"minimal_font"`
	AutoFix            bool          `yaml:"auto_fix"`
}

type VoiceConfig struct {
	Provider    string        `yaml:"provider"` // gtts | edge | sarvam
	Language    string        `yaml:"language"`
	Accent      string        `yaml:"accent"`
	Slow        bool          `yaml:"slow"`
	MaxSpeed    float64       `yaml:"max_speed"`
	Parallelism int           `yaml:"parallelism"`
	Timeout     time.Duration `yaml:"timeout"`
}

type NarrationConfig struct {
	UseLLM bool   `yaml:"use_llm"`
	Model  string `yaml:"model"`
	Level  string `yaml:"level"`
	Topic  string `yaml:"topic"`
}

type ToolsConfig struct {
	FFmpeg  string        `yaml:"ffmpeg"`
	FFprobe string        `yaml:"ffprobe"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	LocalDir string `yaml:"local_dir"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	UploadDir string `yaml:"upload_dir"`
}

// DefaultConfig returns a configuration that works with manim, ffmpeg and gtts-cli on PATH.
func DefaultConfig() *PipelineConfig {
	return &PipelineConfig{
		Paths: PathsConfig{
			WorkDir:   "./temp",
			OutputDir: "./output",
		},
		Render: RenderConfig{
			RendererBin:        "manim",
			Quality:            "low",
			Timeout:            2 * time.Minute,
			Title:              "Mathematical Visualization",
			DefaultExplanation: "Visualization of mathematical concepts and equations.",
			PadSentence:        "Mathematical concepts and visualizations.",
			SlideWidth:         1280,
			SlideHeight:        720,
			MinimalColor:       "blue",
			AutoFix:            true,
		},
		Voice: VoiceConfig{
			Provider:    "gtts",
			Language:    "en",
			Accent:      "us",
			MaxSpeed:    1.2,
			Parallelism: 4,
			Timeout:     time.Minute,
		},
		Narration: NarrationConfig{
			Model: "gemini-3-flash-preview",
			Level: "general",
		},
		Tools: ToolsConfig{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			Timeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			Prefix:   "videos/",
			LocalDir: "./local_db/videos",
		},
		Server: ServerConfig{
			Addr:      ":8080",
			Workers:   2,
			QueueSize: 100,
			UploadDir: "./uploads",
		},
		LogLevel: "info",
	}
}

// LoadConfig reads an optional yaml file over the defaults, then pulls secrets from the environment.
// A missing .env file is not an error.
func LoadConfig(path string) (*PipelineConfig, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	cfg.SarvamKey = os.Getenv("SARVAM_API_KEY")
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		cfg.Storage.Bucket = bucket
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no component can work with.
func (c *PipelineConfig) Validate() error {
	switch {
	case c.Voice.MaxSpeed < 1.0:
		return fmt.Errorf("voice.max_speed must be >= 1.0, got %.2f", c.Voice.MaxSpeed)
	case c.Voice.MaxSpeed > 2.0:
		return fmt.Errorf("voice.max_speed must be <= 2.0 (atempo limit), got %.2f", c.Voice.MaxSpeed)
	case c.Voice.Parallelism < 1:
		return fmt.Errorf("voice.parallelism must be >= 1, got %d", c.Voice.Parallelism)
	case c.Render.Timeout <= 0 || c.Tools.Timeout <= 0 || c.Voice.Timeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	case c.Paths.WorkDir == "" || c.Paths.OutputDir == "":
		return fmt.Errorf("paths.work_dir and paths.output_dir are required")
	case c.Server.Workers < 1:
		return fmt.Errorf("server.workers must be >= 1, got %d", c.Server.Workers)
	case c.Server.QueueSize < 0:
		return fmt.Errorf("server.queue_size must be >= 0, got %d", c.Server.QueueSize)
	}
	if _, ok := QualityFlags[c.Render.Quality]; !ok {
		return fmt.Errorf("render.quality %q is not one of low, medium, high", c.Render.Quality)
	}
	switch c.Voice.Provider {
	case "gtts", "edge", "sarvam":
	default:
		return fmt.Errorf("voice.provider %q is not one of gtts, edge, sarvam", c.Voice.Provider)
	}
	return nil
}

// QualityFlags maps quality names to renderer -q flags.
var QualityFlags = map[string]string{
	"low":    "l",
	"medium": "m",
	"high":   "h",
	"l":      "l",
	"m":      "m",
	"h":      "h",
}
