package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/protocol"
	"github.com/okdaichi/townvoice/internal/reliability"
)

const (
	defaultGenerationModel = "gemini-2.0-flash"
	defaultGenBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGenTimeout      = 60 * time.Second

	genMaxRetries     = 3
	genInitialBackoff = 500 * time.Millisecond
	genMaxBackoff     = 8 * time.Second
)

// GeminiConfig configures the Gemini generation client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeminiGenerator answers questions through the Gemini REST API in the
// configured persona. Questions hitting the deny list short-circuit to a
// canned reply without calling the API.
type GeminiGenerator struct {
	cfg       GeminiConfig
	persona   Persona
	denylist  *policy.Denylist
	retriever Retriever
	client    *http.Client
}

func NewGeminiGenerator(cfg GeminiConfig, persona Persona, denylist *policy.Denylist, retriever Retriever) *GeminiGenerator {
	if cfg.Model == "" {
		cfg.Model = defaultGenerationModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGenBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenTimeout
	}
	if denylist == nil {
		denylist = policy.NewDenylist(nil, nil)
	}
	if retriever == nil {
		retriever = NoopRetriever{}
	}
	return &GeminiGenerator{
		cfg:       cfg,
		persona:   persona,
		denylist:  denylist,
		retriever: retriever,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type generateRequest struct {
	Contents         []genContent `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content genContent `json:"content"`
	} `json:"candidates"`
}

type personaReply struct {
	Response       string `json:"response"`
	PrimaryEmotion string `json:"primary_emotion"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, question, author string) (Reply, error) {
	if denied, reply := g.denylist.Check(question); denied {
		return Reply{Text: reply, Emotion: protocol.EmotionSorrow}, nil
	}

	passages, err := g.retriever.Retrieve(ctx, question)
	if err != nil {
		// Context retrieval is best effort; answer without it.
		passages = nil
	}

	prompt := BuildPrompt(g.persona, question, author, passages)

	var req generateRequest
	req.Contents = []genContent{{Parts: []genPart{{Text: prompt}}}}
	req.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("encode generate request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.cfg.BaseURL, g.cfg.Model, g.cfg.APIKey)

	var lastErr error
	for attempt := 0; attempt < genMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt, genInitialBackoff, genMaxBackoff)
			select {
			case <-ctx.Done():
				return Reply{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		reply, retryable, err := g.doGenerate(ctx, url, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable {
			return Reply{}, err
		}
	}
	return Reply{}, fmt.Errorf("generation failed after %d attempts: %w", genMaxRetries, lastErr)
}

func (g *GeminiGenerator) doGenerate(ctx context.Context, url string, body []byte) (reply Reply, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, false, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Reply{}, true, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, true, fmt.Errorf("read generate response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, reliability.IsRetryableHTTPStatus(resp.StatusCode),
			fmt.Errorf("generate status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Reply{}, false, fmt.Errorf("decode generate response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return Reply{}, true, fmt.Errorf("generate response had no candidates")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	var pr personaReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &pr); err != nil {
		// Models occasionally ignore the JSON instruction. Retry once
		// rather than surface garbage.
		return Reply{}, true, fmt.Errorf("decode persona reply %q: %w", truncateString(text, 80), err)
	}
	if strings.TrimSpace(pr.Response) == "" {
		return Reply{}, true, fmt.Errorf("persona reply had empty response text")
	}

	return Reply{
		Text:    TidyReply(pr.Response),
		Emotion: protocol.ParseEmotion(pr.PrimaryEmotion),
	}, true, nil
}

// TidyReply collapses runs of terminal punctuation the model tends to
// produce when concatenating sentences.
func TidyReply(s string) string {
	s = strings.TrimSpace(s)
	for strings.Contains(s, "。。") {
		s = strings.ReplaceAll(s, "。。", "。")
	}
	return s
}

func truncateBody(raw []byte) string {
	return truncateString(string(raw), 200)
}

func truncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
