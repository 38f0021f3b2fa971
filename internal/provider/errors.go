package provider

import "errors"

var (
	// ErrUnknownSymbol is returned when a symbol is absent from the symbol index.
	// It is always raised before any network call is made.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrProviderUnavailable covers non-success statuses, malformed responses,
	// transport failures and timeouts of the remote price API.
	ErrProviderUnavailable = errors.New("price provider unavailable")
)
