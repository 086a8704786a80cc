package suppression

import "errors"

// Sentinel errors for the suppression service layer.
var (
	ErrUnknownEmail = errors.New("no subscriber state for email")
)
