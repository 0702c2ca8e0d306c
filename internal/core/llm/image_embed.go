package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/markdave123-py/prepdocs/internal/core"
)

// HTTPImageEmbedder calls a vectorize-image endpoint once per image URL.
// The endpoint receives {"url": "..."} and answers {"vector": [...]}.
type HTTPImageEmbedder struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPImageEmbedder(endpoint, apiKey string, client *http.Client) *HTTPImageEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPImageEmbedder{endpoint: endpoint, apiKey: apiKey, client: client}
}

type vectorizeRequest struct {
	URL string `json:"url"`
}

type vectorizeResponse struct {
	Vector []float32 `json:"vector"`
}

func (e *HTTPImageEmbedder) CreateEmbeddings(ctx context.Context, imageURLs []string) ([][]float32, error) {
	out := make([][]float32, 0, len(imageURLs))
	for _, u := range imageURLs {
		vec, err := e.embedOne(ctx, u)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *HTTPImageEmbedder) embedOne(ctx context.Context, imageURL string) ([]float32, error) {
	body, err := json.Marshal(vectorizeRequest{URL: imageURL})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vectorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorize image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vectorize image: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var vr vectorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode vectorize response: %w", err)
	}
	if len(vr.Vector) == 0 {
		return nil, fmt.Errorf("vectorize image: empty vector for %s", imageURL)
	}
	return vr.Vector, nil
}

var _ core.ImageEmbeddingProvider = (*HTTPImageEmbedder)(nil)
