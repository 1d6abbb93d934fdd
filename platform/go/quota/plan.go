package quota

import (
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Unlimited marks a resource without a plan ceiling.
const Unlimited int64 = -1

// Limits are the per-resource ceilings attached to a plan tier.
type Limits struct {
	Users int64
}

var planLimits = map[tenant.Plan]Limits{
	tenant.PlanFree:       {Users: 5},
	tenant.PlanStarter:    {Users: 25},
	tenant.PlanPro:        {Users: 100},
	tenant.PlanEnterprise: {Users: Unlimited},
}

// LimitsFor returns the ceilings for a plan tier, defaulting unknown tiers to free.
func LimitsFor(plan tenant.Plan) Limits {
	if limits, ok := planLimits[plan]; ok {
		return limits
	}
	return planLimits[tenant.PlanFree]
}
