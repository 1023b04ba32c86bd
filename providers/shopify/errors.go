package shopify

import (
	"errors"
	"fmt"
	"strings"
)

var ErrTokenExchangeFailed = errors.New("providers/shopify: token exchange failed")

// ExchangeError reports a code exchange that never produced a provider
// response.
type ExchangeError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return ErrTokenExchangeFailed.Error()
	}
	base := ErrTokenExchangeFailed.Error()
	if strings.TrimSpace(e.Message) != "" {
		base += ": " + strings.TrimSpace(e.Message)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Cause != nil && !errors.Is(e.Cause, ErrTokenExchangeFailed) {
		base += ": " + e.Cause.Error()
	}
	return base
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
