package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okdaichi/townvoice/internal/reliability"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-embedding-001"

	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// GeminiConfig configures the Gemini embedding client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiEmbedder calls the Gemini embedContent REST API.
type GeminiEmbedder struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

func NewGeminiEmbedder(cfg GeminiConfig) *GeminiEmbedder {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &GeminiEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type embedContentResponse struct {
	Embedding *struct {
		Values []float64 `json:"values"`
	} `json:"embedding,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini API error %d (%s): %s", e.Code, e.Status, e.Message)
}

// Embed requests a single embedding vector. Retries transient upstream
// failures with capped exponential backoff.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedContentRequest{
		Model:   "models/" + e.cfg.Model,
		Content: content{Parts: []part{{Text: text}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", strings.TrimRight(e.cfg.BaseURL, "/"), e.cfg.Model, e.cfg.APIKey)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, initialBackoff, maxBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("embed status %d", resp.StatusCode)
			continue
		}

		var result embedContentResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("unmarshal embed response: %w", err)
		}
		if result.Error != nil {
			if reliability.IsRetryableHTTPStatus(result.Error.Code) {
				lastErr = result.Error
				continue
			}
			return nil, result.Error
		}
		if result.Embedding == nil || len(result.Embedding.Values) == 0 {
			return nil, fmt.Errorf("embed response missing vector")
		}

		vec := make([]float32, len(result.Embedding.Values))
		for i, v := range result.Embedding.Values {
			vec[i] = float32(v)
		}
		return vec, nil
	}

	return nil, fmt.Errorf("embed max retries exceeded: %w", lastErr)
}
