package groupbuy

import "errors"

var (
	ErrInvalidSlotCount      = errors.New("slot count must be between 2 and 5000")
	ErrInsufficientInventory = errors.New("insufficient capacity for requested slots")
	ErrGroupBuyNotFound      = errors.New("group buy not found")
	ErrInvalidLink           = errors.New("claim link not recognized")
	ErrAlreadyClaimed        = errors.New("slot already claimed")
	ErrNotActive             = errors.New("group buy is not active")
	ErrExpired               = errors.New("group buy has expired")
	ErrNotExpired            = errors.New("group buy deadline has not passed")
	ErrSlotNotClaimed        = errors.New("slot has not been claimed")
	ErrPaymentNotConfirmed   = errors.New("payment not successful")
)
