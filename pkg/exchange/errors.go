package exchange

import "errors"

// Errors returned by the exchange package.
var (
	// ErrInvalidMode is returned for undefined operating modes.
	ErrInvalidMode = errors.New("exchange: invalid operating mode")

	// ErrInvalidParams is returned when reliability parameters are out of range.
	ErrInvalidParams = errors.New("exchange: invalid reliability parameters")

	// ErrNoCache is returned when a scheduler is created without a cache.
	ErrNoCache = errors.New("exchange: cache is required")
)
