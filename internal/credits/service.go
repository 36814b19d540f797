package credits

import "context"

type store interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string) (int, error)
	Reset(ctx context.Context, userID string) (int, error)
}

// Service decides whether a billable generation may run and debits the
// prepaid balance when it does.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Authorize reports whether a billable step may proceed for the caller.
// Non-member roles are always admitted and never billed. A member with
// no remaining balance gets a structured deny carrying the top-up tiers.
func (s *Service) Authorize(ctx context.Context, userID, role string) (Decision, error) {
	if role != RoleMember {
		return Decision{Allowed: true, Unlimited: true}, nil
	}
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if balance <= 0 {
		return Decision{
			Allowed: false,
			Balance: balance,
			Reason:  ReasonInsufficientCredits,
			Plans:   TopUpPlans(),
		}, nil
	}
	return Decision{Allowed: true, Balance: balance}, nil
}

// Debit decrements the balance by one, floored at zero, and returns the
// new balance. The decrement is atomic in every store so a retried step
// cannot double-spend.
func (s *Service) Debit(ctx context.Context, userID string) (int, error) {
	return s.store.Debit(ctx, userID)
}

// Balance returns the current balance, seeding the starter amount for
// first-time callers.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.store.Balance(ctx, userID)
}

// Reset restores the starter balance.
func (s *Service) Reset(ctx context.Context, userID string) (int, error) {
	return s.store.Reset(ctx, userID)
}
