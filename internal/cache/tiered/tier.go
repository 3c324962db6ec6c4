package tiered

import (
	"fmt"
	"strings"
)

// Tier identifies one cache level. L1 is the fastest and shortest-lived.
type Tier int

const (
	L1 Tier = iota + 1
	L2
	L3
)

// Tiers lists every tier from fastest to slowest.
var Tiers = [...]Tier{L1, L2, L3}

func (t Tier) String() string {
	switch t {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Valid reports whether t names one of the three tiers.
func (t Tier) Valid() bool {
	return t >= L1 && t <= L3
}

func (t Tier) index() int {
	return int(t) - 1
}

// ParseTier accepts "L1", "l2", "3" and similar spellings.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L1", "1":
		return L1, nil
	case "L2", "2":
		return L2, nil
	case "L3", "3":
		return L3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}
