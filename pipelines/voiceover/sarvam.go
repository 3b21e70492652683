package voiceover

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	sarvamURL      = "https://api.sarvam.ai/text-to-speech"
	sarvamMaxChars = 500
)

// SarvamClient calls the Sarvam text-to-speech API, which returns base64 WAV audio.
type SarvamClient struct {
	APIKey   string
	Language string
	Speaker  string
	Model    string
	URL      string
	Retries  int
	Backoff  time.Duration
	client   *http.Client
}

func NewSarvamClient(apiKey, language string) *SarvamClient {
	return &SarvamClient{
		APIKey:   apiKey,
		Language: language,
		Speaker:  "vidya",
		Model:    "bulbul:v2",
		URL:      sarvamURL,
		Retries:  3,
		Backoff:  2 * time.Second,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *SarvamClient) Format() string { return "wav" }

type sarvamRequest struct {
	Inputs              []string `json:"inputs"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Model               string   `json:"model"`
}

type sarvamResponse struct {
	Audios []string `json:"audios"`
}

func (s *SarvamClient) Synthesize(ctx context.Context, req Request) error {
	text := req.Text
	if len(text) > sarvamMaxChars {
		text = truncateAtSentence(text, sarvamMaxChars)
	}

	payload, err := json.Marshal(sarvamRequest{
		Inputs:              []string{text},
		TargetLanguageCode:  sarvamLanguage(s.Language),
		Speaker:             s.Speaker,
		SpeechSampleRate:    22050,
		EnablePreprocessing: true,
		Model:               s.Model,
	})
	if err != nil {
		return err
	}

	var resp *http.Response
	for attempt := 0; attempt < s.Retries; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("api-subscription-key", s.APIKey)

		resp, err = s.client.Do(httpReq)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if err == nil && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			// client errors will not succeed on retry
			break
		}
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}
		if attempt == s.Retries-1 {
			if err != nil {
				return fmt.Errorf("sarvam request: %w", err)
			}
			return fmt.Errorf("sarvam request failed after %d attempts", s.Retries)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Backoff):
		}
	}
	if resp == nil {
		return fmt.Errorf("sarvam request failed after %d attempts", s.Retries)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sarvam API error: %d - %s", resp.StatusCode, string(body))
	}

	var result sarvamResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode sarvam response: %w", err)
	}
	if len(result.Audios) == 0 {
		return fmt.Errorf("no audio in sarvam response")
	}

	audio := result.Audios[0]
	// strip a data-URI header if present
	if idx := strings.Index(audio, ","); idx != -1 {
		audio = audio[idx+1:]
	}
	audioBytes, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return fmt.Errorf("decode sarvam audio: %w", err)
	}
	return os.WriteFile(req.Path, audioBytes, 0644)
}

func sarvamLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "hi", "hindi", "hi-in":
		return "hi-IN"
	default:
		return "en-IN"
	}
}

// truncateAtSentence cuts text to at most max bytes on a rune boundary, preferring a
// sentence end.
func truncateAtSentence(text string, max int) string {
	if len(text) <= max {
		return text
	}
	for max > 0 && !utf8.RuneStart(text[max]) {
		max--
	}
	cut := text[:max]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > max/2 {
		return cut[:idx+1]
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return cut[:idx]
	}
	return cut
}
