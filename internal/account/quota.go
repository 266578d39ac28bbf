package account

import "github.com/blagoySimandov/careerpilot/internal/models"

// tierLimits holds generations allowed per cycle. PREMIUM_PLUS is absent: unlimited.
var tierLimits = map[models.Tier]int64{
	models.TierFreemium: 2,
	models.TierBasic:    5,
	models.TierPremium:  10,
}

// Limit returns the quota for tier. unlimited is true for PREMIUM_PLUS.
// Unknown tiers get the FREEMIUM limit.
func Limit(tier models.Tier) (limit int64, unlimited bool) {
	if tier == models.TierPremiumPlus {
		return 0, true
	}
	if l, ok := tierLimits[tier]; ok {
		return l, false
	}
	return tierLimits[models.TierFreemium], false
}

func CanGenerate(tier models.Tier, usage int64) bool {
	limit, unlimited := Limit(tier)
	return unlimited || usage < limit
}
