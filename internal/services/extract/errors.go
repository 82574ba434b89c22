package extract

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// HTTPStatusError carries the upstream status code so the retry wrapper
// can tell transient failures from permanent ones.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ErrParseFailure marks responses that came back fine but could not be
// turned into a record. Never retried.
var ErrParseFailure = errors.New("failed to parse detail response")

// IsRetryable classifies adapter failures. Timeouts, transient 5xx, 408
// and aborted navigations are retryable; parse failures and the other
// 4xx are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrParseFailure) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == 408
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"err_aborted", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
