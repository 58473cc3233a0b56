package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	// KindInvalidOutput: malformed or schema-violating provider output. Not retried.
	KindInvalidOutput ErrorKind = "invalid_output"
	// KindNotACastingCall: the provider classified the text as not a casting call.
	KindNotACastingCall ErrorKind = "not_a_casting_call"
	// KindTransient: network, timeout, 429 or 5xx after retries were exhausted.
	KindTransient ErrorKind = "transient"
	// KindProviderRejected: a 4xx other than 429, e.g. bad credentials. Not retried.
	KindProviderRejected ErrorKind = "provider_rejected"
)

// ExtractionError is returned by the extraction client.
type ExtractionError struct {
	Kind   ErrorKind
	Reason string
	Raw    string // provider output, when there was one
	Err    error
}

func (e *ExtractionError) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func kindOf(err error) ErrorKind {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// IsTransient reports whether err is a retry-exhausted provider failure.
func IsTransient(err error) bool { return kindOf(err) == KindTransient }

func IsNotCastingCall(err error) bool { return kindOf(err) == KindNotACastingCall }

func IsInvalidOutput(err error) bool { return kindOf(err) == KindInvalidOutput }
