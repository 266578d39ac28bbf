package billing

import (
	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	PlanBasic       = "Basic"
	PlanPremium     = "Premium"
	PlanPremiumPlus = "Premium+"
)

// FallbackTier is granted when a completed purchase names a plan we do not know.
const FallbackTier = models.TierPremium

var planTiers = map[string]models.Tier{
	PlanBasic:       models.TierBasic,
	PlanPremium:     models.TierPremium,
	PlanPremiumPlus: models.TierPremiumPlus,
}

// PlanOrder defines the display ordering of plans.
var PlanOrder = []string{PlanBasic, PlanPremium, PlanPremiumPlus}

// TierForPlan maps a billing plan name to the tier it grants.
func TierForPlan(planName string) models.Tier {
	if tier, ok := planTiers[planName]; ok {
		return tier
	}
	log.Warn().Str("plan_name", planName).Str("tier", string(FallbackTier)).Msg("Unknown plan name, using fallback tier")
	return FallbackTier
}

type Plan struct {
	Name            string      `json:"name"`
	Tier            models.Tier `json:"tier"`
	PriceRef        string      `json:"priceRef,omitempty"`
	GenerationLimit int64       `json:"generationLimit"`
	Unlimited       bool        `json:"unlimited"`
}

type Catalogue struct {
	plans map[string]Plan
}

func NewCatalogue(cfg config.BillingConfig) *Catalogue {
	prices := map[string]string{
		PlanBasic:       cfg.PriceBasic,
		PlanPremium:     cfg.PricePremium,
		PlanPremiumPlus: cfg.PricePremiumPlus,
	}
	c := &Catalogue{plans: make(map[string]Plan, len(PlanOrder))}
	for _, name := range PlanOrder {
		tier := planTiers[name]
		limit, unlimited := account.Limit(tier)
		c.plans[name] = Plan{
			Name:            name,
			Tier:            tier,
			PriceRef:        prices[name],
			GenerationLimit: limit,
			Unlimited:       unlimited,
		}
	}
	return c
}

func (c *Catalogue) Get(name string) (Plan, bool) {
	p, ok := c.plans[name]
	return p, ok
}

// List returns the plans in PlanOrder.
func (c *Catalogue) List() []Plan {
	out := make([]Plan, 0, len(PlanOrder))
	for _, name := range PlanOrder {
		out = append(out, c.plans[name])
	}
	return out
}
