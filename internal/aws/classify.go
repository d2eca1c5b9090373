package aws

import (
	"context"
	"errors"

	"complyscan/internal/engine"

	"github.com/aws/smithy-go"
)

var accessDeniedCodes = map[string]bool{
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
	"AuthorizationError":    true,
}

var throttleCodes = map[string]bool{
	"Throttling":              true,
	"ThrottlingException":     true,
	"RequestLimitExceeded":    true,
	"TooManyRequestsException": true,
	"SlowDown":                true,
}

var notFoundCodes = map[string]bool{
	"NoSuchEntity":              true,
	"NoSuchEntityException":     true,
	"NotFoundException":         true,
	"ResourceNotFoundException": true,
}

// Classify maps an AWS API error onto the engine's fault taxonomy via its
// smithy error code.
func (c *Client) Classify(err error) engine.Fault {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.FaultOther
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case accessDeniedCodes[code]:
			return engine.FaultAccessDenied
		case throttleCodes[code]:
			return engine.FaultThrottled
		case notFoundCodes[code]:
			return engine.FaultNotFound
		}
	}
	return engine.FaultOther
}
