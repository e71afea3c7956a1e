package church

import "errors"

var (
	ErrNotFound              = errors.New("church not found")
	ErrDuplicateChurch       = errors.New("a church with this registration number already exists")
	ErrInvalidState          = errors.New("church is not in a state that allows this action")
	ErrInvalidOrExpiredToken = errors.New("setup token is invalid or has expired")
	ErrNotApproved           = errors.New("church is not approved to receive funds")
	ErrInvalidRegistration   = errors.New("name, registration number and admin email are required")
	ErrReasonRequired        = errors.New("a reason is required")
)
