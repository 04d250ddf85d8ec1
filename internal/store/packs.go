package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

// UnlockPack spends the pack price from the user's balance. Unlocking an
// already-unlocked pack charges nothing.
func (s *Store) UnlockPack(ctx context.Context, userID, packID string) (*domain.UnlockResult, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var price int64
	err = tx.QueryRow(ctx, "SELECT price FROM affirmation_packs WHERE id = $1", packID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pack lookup failed: %w", err)
	}

	res := &domain.UnlockResult{UserID: userID, PackID: packID}

	tag, err := tx.Exec(ctx,
		"INSERT INTO user_unlocked_packs (user_id, pack_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		userID, packID,
	)
	if err != nil {
		return nil, fmt.Errorf("unlock insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		res.AlreadyUnlocked = true
		err = tx.QueryRow(ctx, "SELECT joy_tokens FROM users WHERE id = $1", userID).Scan(&res.JoyTokens)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return res, nil
	}

	// Conditional decrement; the balance never goes negative.
	err = tx.QueryRow(ctx, `
		UPDATE users SET joy_tokens = joy_tokens - $2, updated_at = now()
		WHERE id = $1 AND joy_tokens >= $2
		RETURNING joy_tokens`,
		userID, price,
	).Scan(&res.JoyTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.ErrInsufficientTokens
	}
	if err != nil {
		return nil, fmt.Errorf("token debit failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return res, nil
}

func (s *Store) GetPack(ctx context.Context, packID string) (*domain.AffirmationPack, error) {
	p := domain.AffirmationPack{ID: packID}
	err := s.Db.QueryRow(ctx,
		"SELECT name, description, price FROM affirmation_packs WHERE id = $1", packID,
	).Scan(&p.Name, &p.Description, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
