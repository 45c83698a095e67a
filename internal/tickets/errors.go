package tickets

import "errors"

var (
	ErrPaymentNotConfirmed      = errors.New("payment not successful")
	ErrPaymentOwnershipMismatch = errors.New("payment does not belong to holder")
	ErrInsufficientCapacity     = errors.New("insufficient capacity")
	ErrInvalidQuantity          = errors.New("bulk quantity must be between 50 and 20000")
	ErrPaymentRefReused         = errors.New("payment reference already used for a different issuance")
	ErrTicketNotFound           = errors.New("ticket not found")
)
