package providers

import (
	"fmt"
	"strings"

	"github.com/airsense/airsense/internal/common"
)

// ProviderError reports a failed generation attempt. Retryable errors
// are absorbed by trying the next candidate model; non-retryable ones
// abort the chain and surface to the caller.
type ProviderError struct {
	Model      string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider model %s: status %d: %s", e.Model, e.StatusCode, e.Message)
}

// retryableStatus lists HTTP statuses that always move on to the next
// candidate model.
func retryableStatus(code int) bool {
	switch code {
	case 404, 429, 503:
		return true
	}
	return false
}

// retryableMessage reports whether a payload-level error message is of
// the try-the-next-model class.
func retryableMessage(msg string) bool {
	return common.HasAny(strings.ToLower(msg),
		"overloaded",
		"not found",
		"unsupported",
		"unavailable",
		"unrecognized",
		"quota",
		"rate limit",
	)
}
