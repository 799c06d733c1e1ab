package providers

import (
	"errors"
	"net/http"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
)

// isRetryableStatus classifies provider errors by HTTP status: rate limits
// and server errors are transient, everything else terminal.
func isRetryableStatus(err error) bool {
	var status int

	var anthropicErr *anthropicsdk.Error
	var openaiErr *openai.APIError
	var googleErr *googleapi.Error
	switch {
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	case errors.As(err, &openaiErr):
		status = openaiErr.HTTPStatusCode
	case errors.As(err, &googleErr):
		status = googleErr.Code
	default:
		return false
	}

	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
