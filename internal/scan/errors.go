package scan

import "errors"

var (
	ErrTicketNotFound = errors.New("no ticket matches the presented credential")
	ErrNotVerifiable  = errors.New("ticket is not in a scannable state")
)
