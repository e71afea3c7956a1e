package payout

import "errors"

var (
	ErrNotFound        = errors.New("payout not found")
	ErrInvalidState    = errors.New("payout is not in a state that allows this action")
	ErrReasonRequired  = errors.New("a reason is required to reject a payout")
	ErrInvalidDecision = errors.New("decision must be approve or reject")
)
