package nexus

import (
	"goflare.io/nexus/internal/cache/tiered"
	"goflare.io/nexus/pkg/router"
)

var (
	ErrUnknownTier  = tiered.ErrUnknownTier
	ErrNilLoader    = tiered.ErrNilLoader
	ErrInvalidRoute = router.ErrInvalidRoute
)
