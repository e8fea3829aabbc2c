package domain

import "errors"

var (
	ErrValidation    = errors.New("invalid input")
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrTimeout       = errors.New("upstream timeout")
	ErrContentPolicy = errors.New("no image in response")
	ErrStorage       = errors.New("storage failure")
	ErrNotFound      = errors.New("not found")
)
