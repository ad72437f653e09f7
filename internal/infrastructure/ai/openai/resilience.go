package openai

import (
	"context"
	"errors"
	"net"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// wrapTemporaryIfNeeded marks retryable failures so the gateway moves on
// to the next backend instead of giving up on the item.
func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if isTransient(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableHTTPStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableHTTPStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
