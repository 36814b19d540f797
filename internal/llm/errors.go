package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a provider failure for retry and failover decisions.
type ErrorKind string

const (
	// KindFatal covers bad credentials, malformed requests, and anything
	// else that will not succeed on retry.
	KindFatal ErrorKind = "fatal"
	// KindQuotaExceeded covers rate and quota signals.
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	// KindOverloaded covers transient provider unavailability.
	KindOverloaded ErrorKind = "overloaded"
)

// ProviderError is a classified provider failure.
type ProviderError struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider %s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s", e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify maps an error from a Client attempt to an ErrorKind. Errors
// already carrying a ProviderError keep their kind; transport-level
// timeouts and connection drops count as overloaded; everything else is
// fatal.
func Classify(err error) ErrorKind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindOverloaded
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindOverloaded
	}
	return KindFatal
}
