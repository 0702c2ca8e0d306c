package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/prepdocs/internal/core"
)

const describePrompt = "Describe this image for a search index. Transcribe any visible text, " +
	"then summarise charts, diagrams and tables in plain sentences."

// GeminiDescriber describes images with a Gemini generative model.
type GeminiDescriber struct {
	client    *genai.Client
	modelName string
}

func NewGeminiDescriber(ctx context.Context, apiKey, modelName string) (*GeminiDescriber, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiDescriber{client: cl, modelName: modelName}, nil
}

func (g *GeminiDescriber) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiDescriber) Describe(ctx context.Context, mimeType string, data []byte) (string, error) {
	m := g.client.GenerativeModel(g.modelName)

	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := m.GenerateContent(ctx, genai.Text(describePrompt), genai.ImageData(format, data))
	if err != nil {
		return "", fmt.Errorf("gemini describe: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.ImageDescriber = (*GeminiDescriber)(nil)
