package core

import "context"

// EmbeddingProvider turns section texts into vectors, one per input, in order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbeddingProvider turns addressable image URLs into vectors, in order.
type ImageEmbeddingProvider interface {
	CreateEmbeddings(ctx context.Context, imageURLs []string) ([][]float32, error)
}

// ImageDescriber returns a text description of an image.
type ImageDescriber interface {
	Describe(ctx context.Context, mimeType string, data []byte) (string, error)
}
