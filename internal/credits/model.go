package credits

// Plan is a purchasable credit top-up tier.
type Plan struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Credits    int    `json:"credits"`
	PriceCents int    `json:"priceCents"`
}

// Decision is the outcome of an admission check. A deny is a normal
// outcome, not an error: it carries the balance and the purchase path.
type Decision struct {
	Allowed   bool   `json:"allowed"`
	Unlimited bool   `json:"unlimited"`
	Balance   int    `json:"balance"`
	Reason    string `json:"reason,omitempty"`
	Plans     []Plan `json:"plans,omitempty"`
}

// Caller roles. Only members draw down prepaid credits.
const (
	RoleMember  = "member"
	RolePremium = "premium"
	RoleAdmin   = "admin"
)

// ReasonInsufficientCredits is the deny reason for an exhausted balance.
const ReasonInsufficientCredits = "insufficient_credits"
