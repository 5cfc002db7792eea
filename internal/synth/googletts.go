package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okdaichi/townvoice/internal/reliability"
)

const (
	defaultTTSBaseURL      = "https://texttospeech.googleapis.com/v1"
	defaultTTSVoice        = "ja-JP-Neural2-B"
	defaultTTSLanguage     = "ja-JP"
	defaultTTSSpeakingRate = 1.15
	defaultTTSTimeout      = 30 * time.Second

	ttsMaxRetries     = 3
	ttsInitialBackoff = 500 * time.Millisecond
	ttsMaxBackoff     = 8 * time.Second

	// Responses shorter than this are silence or garbage, never a real
	// utterance. Treated as a provider failure.
	minAudioBytes = 100
)

// GoogleTTSConfig configures the Cloud Text-to-Speech client.
type GoogleTTSConfig struct {
	APIKey       string
	BaseURL      string
	Voice        string
	LanguageCode string
	SpeakingRate float64
	Timeout      time.Duration
}

// GoogleTTS synthesizes MP3 speech through the Cloud Text-to-Speech REST
// API.
type GoogleTTS struct {
	cfg    GoogleTTSConfig
	client *http.Client
}

func NewGoogleTTS(cfg GoogleTTSConfig) *GoogleTTS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTTSBaseURL
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultTTSVoice
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = defaultTTSLanguage
	}
	if cfg.SpeakingRate <= 0 {
		cfg.SpeakingRate = defaultTTSSpeakingRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTTSTimeout
	}
	return &GoogleTTS{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string  `json:"audioEncoding"`
		SpeakingRate  float64 `json:"speakingRate"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize renders text as MP3 bytes. Name readings are applied before
// the request so the voice pronounces local place names correctly.
func (g *GoogleTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var req synthesizeRequest
	req.Input.Text = ApplyReadings(text)
	req.Voice.LanguageCode = g.cfg.LanguageCode
	req.Voice.Name = g.cfg.Voice
	req.AudioConfig.AudioEncoding = "MP3"
	req.AudioConfig.SpeakingRate = g.cfg.SpeakingRate

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	url := fmt.Sprintf("%s/text:synthesize?key=%s", g.cfg.BaseURL, g.cfg.APIKey)

	var lastErr error
	for attempt := 0; attempt < ttsMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, ttsInitialBackoff, ttsMaxBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		audio, retryable, err := g.doSynthesize(ctx, url, body)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("tts failed after %d attempts: %w", ttsMaxRetries, lastErr)
}

func (g *GoogleTTS) doSynthesize(ctx context.Context, url string, body []byte) (audio []byte, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, reliability.IsRetryableHTTPStatus(resp.StatusCode),
			fmt.Errorf("tts status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("decode tts response: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, false, fmt.Errorf("decode tts audio: %w", err)
	}
	if len(decoded) < minAudioBytes {
		return nil, true, fmt.Errorf("tts returned degenerate audio (%d bytes)", len(decoded))
	}
	return decoded, true, nil
}

func truncateBody(raw []byte) string {
	const max = 200
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
