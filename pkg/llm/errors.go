package llm

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds for model calls. Callers branch with the Is*
// helpers; the wrapping ProviderError carries the detail.
var (
	// ErrTransport indicates the request never completed: dial, TLS,
	// timeout, connection reset.
	ErrTransport = errors.New("provider transport failure")

	// ErrHTTPStatus indicates the endpoint answered with a non-2xx status.
	ErrHTTPStatus = errors.New("provider returned error status")

	// ErrMalformedResponse indicates a 2xx body that does not carry a
	// usable completion.
	ErrMalformedResponse = errors.New("provider returned malformed response")
)

// ProviderError wraps a failed model call with enough context to log and
// classify it. It unwraps to one of the sentinel kinds above.
type ProviderError struct {
	Provider   string
	Endpoint   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Kind }

// IsTransport reports whether err is a transport-level provider failure.
func IsTransport(err error) bool { return errors.Is(err, ErrTransport) }

// IsHTTPStatus reports whether err is a non-2xx provider response.
func IsHTTPStatus(err error) bool { return errors.Is(err, ErrHTTPStatus) }

// IsMalformedResponse reports whether err is an unusable provider reply.
func IsMalformedResponse(err error) bool { return errors.Is(err, ErrMalformedResponse) }

// IsProviderError reports whether err is any model-call failure.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
