package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PineconeClient talks to a Pinecone-compatible index over its REST data
// plane:
//
//	POST {host}/describe_index_stats
//	POST {host}/vectors/upsert
//	POST {host}/query
//	POST {host}/vectors/delete
type PineconeClient struct {
	host   string
	apiKey string
	client *http.Client
}

// PineconeConfig configures the index client.
type PineconeConfig struct {
	Host    string // index endpoint, e.g. "https://pdf-chat-xxxx.svc.pinecone.io"
	APIKey  string
	Timeout time.Duration
}

// NewPineconeClient validates the configuration and returns a client.
func NewPineconeClient(cfg PineconeConfig) (*PineconeClient, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("vectorindex: missing host")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vectorindex: missing API key")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &PineconeClient{
		host:   strings.TrimRight(cfg.Host, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: t},
	}, nil
}

// DescribeStats returns the namespace map of the index. Transport and server
// failures surface as ErrIndexUnavailable so callers cannot mistake an
// unreachable index for an empty one.
func (c *PineconeClient) DescribeStats(ctx context.Context) (Stats, error) {
	var out struct {
		Namespaces map[string]struct {
			VectorCount int64 `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := c.post(ctx, "/describe_index_stats", struct{}{}, &out); err != nil {
		return Stats{}, err
	}
	st := Stats{Namespaces: make(map[string]NamespaceStats, len(out.Namespaces))}
	for k, v := range out.Namespaces {
		st.Namespaces[k] = NamespaceStats{VectorCount: v.VectorCount}
	}
	return st, nil
}

// Upsert writes vectors into the namespace.
func (c *PineconeClient) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	type wireVector struct {
		ID       string         `json:"id"`
		Values   []float32      `json:"values"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}
	req := struct {
		Vectors   []wireVector `json:"vectors"`
		Namespace string       `json:"namespace"`
	}{Namespace: namespace}
	for _, v := range vectors {
		req.Vectors = append(req.Vectors, wireVector{ID: v.ID, Values: v.Values, Metadata: v.Metadata})
	}
	return c.post(ctx, "/vectors/upsert", req, nil)
}

// Query returns the topK nearest matches in the namespace, with metadata.
func (c *PineconeClient) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 4
	}
	req := struct {
		Vector          []float32 `json:"vector"`
		TopK            int       `json:"topK"`
		Namespace       string    `json:"namespace"`
		IncludeMetadata bool      `json:"includeMetadata"`
	}{Vector: vector, TopK: topK, Namespace: namespace, IncludeMetadata: true}

	var out struct {
		Matches []struct {
			ID       string         `json:"id"`
			Score    float64        `json:"score"`
			Metadata map[string]any `json:"metadata"`
		} `json:"matches"`
	}
	if err := c.post(ctx, "/query", req, &out); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return matches, nil
}

// DeleteNamespace removes every vector in the namespace. A 404 from the
// service means the namespace never existed; that is success, not failure.
func (c *PineconeClient) DeleteNamespace(ctx context.Context, namespace string) error {
	req := struct {
		DeleteAll bool   `json:"deleteAll"`
		Namespace string `json:"namespace"`
	}{DeleteAll: true, Namespace: namespace}
	err := c.post(ctx, "/vectors/delete", req, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// statusError carries the HTTP status of a non-2xx data-plane response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("vectorindex: status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

// post issues one JSON request and decodes the response into out (when
// non-nil). Transport errors and 5xx map to ErrIndexUnavailable.
func (c *PineconeClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrIndexUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("vectorindex: decode %s: %w", path, err)
		}
	}
	return nil
}
