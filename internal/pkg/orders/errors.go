package orders

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrOrderExists   = errors.New("order already exists")
)
