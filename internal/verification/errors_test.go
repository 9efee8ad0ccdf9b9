package verification

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "nil", err: nil, want: OutcomeVerified},
		{name: "structured code", err: &APIError{Code: CodeAlreadyVerified, Message: "source published"}, want: OutcomeAlreadyVerified},
		{name: "wrapped structured code", err: fmt.Errorf("verify: %w", &APIError{Code: CodeAlreadyVerified}), want: OutcomeAlreadyVerified},
		{name: "mixed case message", err: errors.New("Contract source code Already Verified"), want: OutcomeAlreadyVerified},
		{name: "lower case message", err: errors.New("reason: already verified"), want: OutcomeAlreadyVerified},
		{name: "upper case message", err: errors.New("ALREADY VERIFIED"), want: OutcomeAlreadyVerified},
		{name: "message in other code", err: &APIError{Code: CodeRejected, Message: "Already Verified"}, want: OutcomeAlreadyVerified},
		{name: "rate limited", err: errors.New("rate limited"), want: OutcomeFailed},
		{name: "failed verdict", err: &APIError{Code: CodeFailed, Message: "Fail - Unable to verify"}, want: OutcomeFailed},
		{name: "not verified", err: errors.New("contract not verified"), want: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.True(t, OutcomeVerified.Succeeded())
	assert.True(t, OutcomeAlreadyVerified.Succeeded())
	assert.False(t, OutcomeFailed.Succeeded())

	assert.Equal(t, "verified", OutcomeVerified.String())
	assert.Equal(t, "already_verified", OutcomeAlreadyVerified.String())
	assert.Equal(t, "failed", OutcomeFailed.String())

	text, err := OutcomeAlreadyVerified.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "already_verified", string(text))
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: CodeRejected, Message: "Invalid API Key"}
	assert.Equal(t, "rejected: Invalid API Key", err.Error())
}
