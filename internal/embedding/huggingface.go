package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HFClient is a HuggingFace Inference API embeddings client implementing the
// Embedder interface. It speaks the feature-extraction pipeline endpoint:
//
//	POST {base}/pipeline/feature-extraction/{model}
//	{"inputs": ["text", ...]}  ->  [[...floats], ...]
type HFClient struct {
	baseURL    string
	apiKey     string
	model      string
	client     *http.Client
	maxRetries int
}

// HFConfig configures the HuggingFace embeddings client.
type HFConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewHFClient creates a new embeddings client using the provided configuration.
func NewHFClient(cfg HFConfig) (*HFClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-inference.huggingface.co"
	}
	if cfg.Model == "" {
		cfg.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &HFClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: 4,
	}, nil
}

// EmbedOne embeds a single text.
func (c *HFClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds a batch of texts. Every input must be non-empty after
// trimming; the whole batch is rejected otherwise so a blank vector never
// reaches the index.
func (c *HFClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyInput
		}
	}

	body, _ := json.Marshal(struct {
		Inputs []string `json:"inputs"`
	}{Inputs: texts})
	url := fmt.Sprintf("%s/pipeline/feature-extraction/%s", c.baseURL, c.model)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.maxRetries {
				sleep(ctx, retryDelay(attempt))
				continue
			}
			return nil, lastErr
		}

		// 429/5xx: the model may be loading or rate limited; back off.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("embedding: %s", resp.Status)
			if attempt < c.maxRetries {
				sleep(ctx, delay)
				continue
			}
			return nil, lastErr
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				sleep(ctx, retryDelay(attempt))
				continue
			}
			return nil, lastErr
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("embedding: %s: %s", resp.Status, truncated(payload))
		}

		var vecs [][]float32
		if err := json.Unmarshal(payload, &vecs); err != nil {
			return nil, fmt.Errorf("embedding: decode response: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(vecs), len(texts))
		}
		return vecs, nil
	}
	return nil, lastErr
}

// retryDelay is exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func truncated(b []byte) string {
	const max = 256
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
