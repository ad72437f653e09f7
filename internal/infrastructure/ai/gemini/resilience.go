package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

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

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return isRetryableHTTPStatus(statusErr.StatusCode)
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
