package sla

import "errors"

var (
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrNegativeTarget  = errors.New("target minutes must not be negative")
)
