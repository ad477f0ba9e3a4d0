package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrLockHeld            = errors.New("lock already held")
	ErrBrokerNotStarted    = errors.New("broker not started")
	ErrUnsupportedExchange = errors.New("unsupported exchange")
	ErrSymbolUnavailable   = errors.New("symbol unavailable")
	ErrInvalidConfig       = errors.New("invalid configuration")
)
