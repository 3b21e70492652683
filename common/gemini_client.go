package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.ResponseMIMEType = "application/json"

	return &GeminiClient{
		client: client,
		model:  model,
	}, nil
}

func (g *GeminiClient) Close() {
	g.client.Close()
}

// levelGuidance tunes vocabulary per audience level.
var levelGuidance = map[string]string{
	"primary":     "Use simple vocabulary and short sentences for students aged 8-11. Prefer everyday analogies and intuition over formalism.",
	"high school": "Use vocabulary for students aged 14-18. Balance intuition with some formal mathematical language.",
	"university":  "Use precise mathematical language for university students. Formalism is welcome but keep each idea clear.",
}

// GenerateNarration asks the model for one narration line per step, in step order.
func (g *GeminiClient) GenerateNarration(ctx context.Context, steps []TimelineStep, topic, level string) ([]string, error) {
	prompt := buildNarrationPrompt(steps, topic, level)

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	text, err := g.extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}
	return parseNarrationLines(text)
}

func buildNarrationPrompt(steps []TimelineStep, topic, level string) string {
	var sb strings.Builder
	sb.WriteString(`You are an expert mathematics and science educator writing the voiceover for an animation.
Write natural, conversational narration that explains the ideas behind each animation step.
Do not say "as you can see" or describe drawing mechanics; explain what the visuals mean.
Each line must be short enough to be spoken within the step's time budget (about 2.5 words per second).
`)
	if guide, ok := levelGuidance[level]; ok {
		sb.WriteString(guide)
		sb.WriteString("\n")
	}
	if topic != "" {
		sb.WriteString(fmt.Sprintf("\nTopic: %s\n", topic))
	}
	sb.WriteString("\nAnimation steps:\n")
	for _, s := range steps {
		action := s.Action
		if len(action) > 200 {
			action = action[:200] + "..."
		}
		sb.WriteString(fmt.Sprintf("%d. [%.1fs] %s", s.Index+1, s.Wait, action))
		if s.Annotation != "" {
			sb.WriteString(fmt.Sprintf(" (author note: %s)", s.Annotation))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nReturn ONLY a JSON array of exactly %d strings, one narration line per step, in order.\n", len(steps)))
	return sb.String()
}

// parseNarrationLines accepts a bare JSON array or one wrapped in markdown fences.
func parseNarrationLines(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var lines []string
	if err := json.Unmarshal([]byte(text), &lines); err != nil {
		return nil, fmt.Errorf("parse narration json: %w", err)
	}
	return lines, nil
}

func (g *GeminiClient) extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	return sb.String(), nil
}
