package entitlements

import (
	"github.com/pitlane-app/pitlane/app/models"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// IncludedGarageSlots returns the garage slots that come with a plan before
// any purchased slots.
func IncludedGarageSlots(plan Plan) int {
	switch plan {
	case PlanPremium:
		return 3
	default:
		return 1
	}
}

// Summary is the user's effective entitlement.
type Summary struct {
	Plan           Plan `json:"plan"`
	IsPremium      bool `json:"is_premium"`
	IncludedSlots  int  `json:"included_slots"`
	PurchasedSlots int  `json:"purchased_slots"`
	GarageSlots    int  `json:"garage_slots"`
}

// Effective combines plan allowances with purchased slots. A nil state is a
// user who never bought anything.
func Effective(state *models.EntitlementState) Summary {
	plan := PlanFree
	purchased := 0
	if state != nil {
		if state.IsPremium {
			plan = PlanPremium
		}
		if state.PurchasedSlotCount > 0 {
			purchased = state.PurchasedSlotCount
		}
	}

	included := IncludedGarageSlots(plan)
	return Summary{
		Plan:           plan,
		IsPremium:      plan == PlanPremium,
		IncludedSlots:  included,
		PurchasedSlots: purchased,
		GarageSlots:    included + purchased,
	}
}
