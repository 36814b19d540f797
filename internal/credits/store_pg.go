package credits

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed credits store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Balance(ctx context.Context, userID string) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var balance int
	row := tx.QueryRowContext(ctx, `
SELECT balance FROM credits WHERE user_id = $1 FOR UPDATE`, userID)
	err = row.Scan(&balance)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		balance = starterBalance
		if _, err = tx.ExecContext(ctx, `
INSERT INTO credits (user_id, balance, updated_at) VALUES ($1, $2, $3)`,
			userID, balance, time.Now().UTC()); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return balance, nil
}

// Debit is a single atomic statement so a retried tailor step that
// already succeeded server-side cannot decrement twice concurrently.
func (s *pgStore) Debit(ctx context.Context, userID string) (int, error) {
	var balance int
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO credits (user_id, balance, updated_at)
VALUES ($1, GREATEST($2 - 1, 0), $3)
ON CONFLICT (user_id)
DO UPDATE SET balance = GREATEST(credits.balance - 1, 0), updated_at = EXCLUDED.updated_at
RETURNING balance`, userID, starterBalance, time.Now().UTC())
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *pgStore) Reset(ctx context.Context, userID string) (int, error) {
	var balance int
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO credits (user_id, balance, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id)
DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at
RETURNING balance`, userID, starterBalance, time.Now().UTC())
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}
