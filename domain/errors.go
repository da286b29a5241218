package domain

import "errors"

var (
	// ErrBookNotReady is returned by book reads when the book did not become
	// ready within the configured wait timeout (startup or a long reset).
	ErrBookNotReady = errors.New("order book is not ready for reading")

	// ErrTooManyTrades is returned when a caller asks for more trade history
	// than the configured buffer capacity.
	ErrTooManyTrades = errors.New("requested more trades than the trade buffer capacity")
)
