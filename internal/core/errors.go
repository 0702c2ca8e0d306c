package core

import "errors"

var (
	ErrMissingEndpoint          = errors.New("content understanding is enabled but no endpoint was provided")
	ErrKeyCredentialUnsupported = errors.New("key credentials are not supported for content understanding, use keyless auth instead")
	ErrEmbeddingCount           = errors.New("embedding count does not match input count")
	ErrNoProcessor              = errors.New("no processor registered for extension")
	ErrRemoveNotConverged       = errors.New("index still reports matching documents")
)
