package contracts

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrFileTooLarge = errors.New("file too large")
	ErrBadSignature = errors.New("file content does not match its extension")
)
