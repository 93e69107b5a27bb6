package organisation

import "fmt"

type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var tierLimits = map[Tier]Limits{
	TierFree:       {MaxFarms: 1, MaxUsersPerFarm: 3, MaxUsersTotal: 5},
	TierPro:        {MaxFarms: 10, MaxUsersPerFarm: 25, MaxUsersTotal: 100},
	TierEnterprise: {MaxFarms: 0, MaxUsersPerFarm: 0, MaxUsersTotal: 0}, // 0 = unlimited
}

var tierPriceIDs = map[Tier]string{
	TierPro:        "price_farmdash_pro_monthly",
	TierEnterprise: "price_farmdash_enterprise_monthly",
}

// PriceIDForTier maps a paid tier to its Stripe price id. The free tier
// has no Stripe counterpart.
func PriceIDForTier(tier Tier) (string, error) {
	priceID, ok := tierPriceIDs[tier]
	if !ok {
		return "", fmt.Errorf("no stripe price for tier %q: %w", tier, ErrUnknownTier)
	}
	return priceID, nil
}
