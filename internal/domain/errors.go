package domain

import "errors"

var (
	ErrItemNotFound = errors.New("item not found")
	ErrMissingName  = errors.New("product name is required")
)
