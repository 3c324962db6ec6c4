package tiered

import "errors"

var (
	// ErrUnknownTier is returned when a caller names a tier other than L1, L2 or L3.
	ErrUnknownTier = errors.New("unknown cache tier")
	// ErrNilLoader is returned by Fetch and Warmup when no loader is given.
	ErrNilLoader = errors.New("loader must not be nil")
)
