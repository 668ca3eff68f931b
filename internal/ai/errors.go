package ai

import "github.com/kiranshivaraju/fielddispatch/internal/ai/httpjson"

var (
	ErrProviderUnavailable = httpjson.ErrProviderUnavailable
	ErrInferenceTimeout    = httpjson.ErrInferenceTimeout
	ErrInvalidResponse     = httpjson.ErrInvalidResponse
)
