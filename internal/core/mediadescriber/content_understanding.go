package mediadescriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/markdave123-py/prepdocs/internal/core"
)

const (
	DefaultAnalyzerID = "image_analyzer"
	apiVersion        = "2024-12-01-preview"
)

var ErrAnalyzerFailed = errors.New("analyzer creation failed")

// ContentUnderstanding provisions the image analyzer used to describe
// figures during parsing.
type ContentUnderstanding struct {
	endpoint   string
	token      string
	analyzerID string
	client     *http.Client
	poll       time.Duration
	maxPolls   int
	logger     *slog.Logger
}

type Option func(*ContentUnderstanding)

func WithHTTPClient(c *http.Client) Option {
	return func(cu *ContentUnderstanding) { cu.client = c }
}

// WithPolling sets the interval and number of status checks made while the
// analyzer is being created.
func WithPolling(interval time.Duration, max int) Option {
	return func(cu *ContentUnderstanding) {
		cu.poll = interval
		cu.maxPolls = max
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cu *ContentUnderstanding) { cu.logger = l }
}

func New(endpoint, token string, opts ...Option) (*ContentUnderstanding, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, core.ErrMissingEndpoint
	}
	cu := &ContentUnderstanding{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		analyzerID: DefaultAnalyzerID,
		client:     &http.Client{Timeout: 60 * time.Second},
		poll:       time.Second,
		maxPolls:   60,
	}
	for _, o := range opts {
		o(cu)
	}
	if cu.logger == nil {
		cu.logger = slog.Default()
	}
	return cu, nil
}

type fieldSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Fields      map[string]field `json:"fields"`
}

type field struct {
	Type        string `json:"type"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

type analyzerRequest struct {
	Description string      `json:"description"`
	Scenario    string      `json:"scenario"`
	Config      any         `json:"config"`
	FieldSchema fieldSchema `json:"fieldSchema"`
}

type operationStatus struct {
	Status string `json:"status"`
}

func (cu *ContentUnderstanding) analyzerURL() string {
	return fmt.Sprintf("%s/contentunderstanding/analyzers/%s?api-version=%s", cu.endpoint, cu.analyzerID, apiVersion)
}

// CreateAnalyzer creates the analyzer and waits for the operation to finish.
// An analyzer that already exists is left as is.
func (cu *ContentUnderstanding) CreateAnalyzer(ctx context.Context) error {
	body, err := json.Marshal(analyzerRequest{
		Description: "Extract description from image using document analysis.",
		Scenario:    "image",
		Config:      map[string]bool{"returnDetails": false},
		FieldSchema: fieldSchema{
			Name:        "ImageInformation",
			Description: "Description of image.",
			Fields: map[string]field{
				"Description": {
					Type:        "string",
					Method:      "generate",
					Description: "Description of the image. If the image has a title, start with the title. Include a 2-sentence summary. If the image is a chart, diagram, or table, include the underlying data in an HTML table tag, with accurate numbers. If the image is a chart, describe any axis or legends. The only allowed HTML tags are the table/thead/tr/td/tbody tags.",
				},
			},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, cu.analyzerURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	cu.authorize(req)

	resp, err := cu.client.Do(req)
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		cu.logger.Info("analyzer already exists", "analyzer", cu.analyzerID)
		return nil
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: status %d: %s", ErrAnalyzerFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return nil
	}
	return cu.waitFor(ctx, opURL)
}

func (cu *ContentUnderstanding) waitFor(ctx context.Context, opURL string) error {
	for i := 0; i < cu.maxPolls; i++ {
		status, err := cu.status(ctx, opURL)
		if err != nil {
			return err
		}
		switch strings.ToLower(status) {
		case "succeeded":
			cu.logger.Info("analyzer created", "analyzer", cu.analyzerID)
			return nil
		case "failed", "canceled":
			return fmt.Errorf("%w: operation %s", ErrAnalyzerFailed, status)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cu.poll):
		}
	}
	return fmt.Errorf("%w: operation still running after %d checks", ErrAnalyzerFailed, cu.maxPolls)
}

func (cu *ContentUnderstanding) status(ctx context.Context, opURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return "", err
	}
	cu.authorize(req)
	resp, err := cu.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("poll analyzer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: poll status %d", ErrAnalyzerFailed, resp.StatusCode)
	}
	var st operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return "", fmt.Errorf("decode operation status: %w", err)
	}
	return st.Status, nil
}

func (cu *ContentUnderstanding) authorize(req *http.Request) {
	if cu.token != "" {
		req.Header.Set("Authorization", "Bearer "+cu.token)
	}
}

var _ core.AnalyzerProvisioner = (*ContentUnderstanding)(nil)
