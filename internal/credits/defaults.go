package credits

const starterBalance = 3

// TopUpPlans returns the purchasable tiers surfaced with a deny.
func TopUpPlans() []Plan {
	return []Plan{
		{ID: "pack_5", Name: "5 tailoring credits", Credits: 5, PriceCents: 499},
		{ID: "pack_15", Name: "15 tailoring credits", Credits: 15, PriceCents: 1199},
		{ID: "pack_50", Name: "50 tailoring credits", Credits: 50, PriceCents: 2999},
	}
}
