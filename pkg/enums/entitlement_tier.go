package enums

import "fmt"

// EntitlementTier is the derived access level granted to an account.
type EntitlementTier string

const (
	EntitlementTierFree EntitlementTier = "free"
	EntitlementTierPro  EntitlementTier = "pro"
)

var validEntitlementTiers = []EntitlementTier{
	EntitlementTierFree,
	EntitlementTierPro,
}

// String implements fmt.Stringer.
func (t EntitlementTier) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t EntitlementTier) IsValid() bool {
	for _, candidate := range validEntitlementTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseEntitlementTier converts raw input into an EntitlementTier.
func ParseEntitlementTier(value string) (EntitlementTier, error) {
	for _, candidate := range validEntitlementTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entitlement tier %q", value)
}
