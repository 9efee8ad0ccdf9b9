package verification

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes carried by APIError
const (
	CodeAlreadyVerified = "already_verified"
	CodeFailed          = "verification_failed"
	CodeRejected        = "rejected"
	CodePending         = "pending_timeout"
	CodeHTTP            = "http_error"
	CodeMissingInput    = "missing_input"
)

// APIError is an error reported by the verification service
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Outcome is the classified result of a verification attempt
type Outcome int

const (
	OutcomeVerified Outcome = iota
	OutcomeAlreadyVerified
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeAlreadyVerified:
		return "already_verified"
	default:
		return "failed"
	}
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Succeeded reports whether the contract source is published after the attempt
func (o Outcome) Succeeded() bool {
	return o == OutcomeVerified || o == OutcomeAlreadyVerified
}

// Classify maps the error returned by Verify to an Outcome. A structured
// APIError code wins; otherwise any message containing "already verified"
// in any case counts as already verified.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeVerified
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == CodeAlreadyVerified {
		return OutcomeAlreadyVerified
	}

	if isAlreadyVerified(err.Error()) {
		return OutcomeAlreadyVerified
	}
	return OutcomeFailed
}

func isAlreadyVerified(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already verified")
}
