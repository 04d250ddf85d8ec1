package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

// ApplyTokenCredit adds tokens to a user once per order id. It returns false
// when the order was already applied.
func (s *Store) ApplyTokenCredit(ctx context.Context, orderID, userID string, tokens int64) (bool, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	reserved, err := reserveOrder(ctx, tx, orderID, domain.PurposeJoyTokenPurchase, userID, nil, tokens)
	if err != nil || !reserved {
		return false, err
	}

	// Missing users are created so a credit is never lost.
	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, joy_tokens) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET joy_tokens = users.joy_tokens + EXCLUDED.joy_tokens, updated_at = now()`,
		userID, tokens,
	)
	if err != nil {
		return false, fmt.Errorf("token credit failed: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("tx commit failed: %w", err)
	}
	return true, nil
}

// ApplySponsorship flags a message as sponsored once per order id. A
// sponsorship with Content creates the message first if it is absent.
func (s *Store) ApplySponsorship(ctx context.Context, orderID, userID string, sp domain.Sponsorship) (bool, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	reserved, err := reserveOrder(ctx, tx, orderID, domain.PurposeMessageSponsorship, userID, &sp.MessageID, 0)
	if err != nil || !reserved {
		return false, err
	}

	if sp.Content != "" {
		_, err = tx.Exec(ctx,
			"INSERT INTO messages (id, author_id, content) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING",
			sp.MessageID, userID, sp.Content,
		)
		if err != nil {
			return false, fmt.Errorf("message insert failed: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET is_sponsored = true, sponsored_by = $2, sponsored_duration = $3, sponsored_at = now()
		WHERE id = $1`,
		sp.MessageID, sp.SponsoredBy, sp.DurationHours,
	)
	if err != nil {
		return false, fmt.Errorf("sponsorship update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, sp.MessageID)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("tx commit failed: %w", err)
	}
	return true, nil
}

// reserveOrder records the order id inside tx. A concurrent reservation of the
// same id blocks until the other transaction finishes.
func reserveOrder(ctx context.Context, tx pgx.Tx, orderID string, purpose domain.Purpose, userID string, messageID *string, tokens int64) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO processed_orders (order_id, purpose, user_id, message_id, tokens)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, string(purpose), userID, messageID, tokens,
	)
	if err != nil {
		return false, fmt.Errorf("order reservation failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (*domain.UserTokenBalance, error) {
	b := domain.UserTokenBalance{UserID: userID}
	err := s.Db.QueryRow(ctx, "SELECT joy_tokens FROM users WHERE id = $1", userID).Scan(&b.JoyTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*domain.MessageSponsorship, error) {
	var (
		m        = domain.MessageSponsorship{MessageID: messageID}
		by       *string
		duration *int
	)
	err := s.Db.QueryRow(ctx,
		"SELECT content, is_sponsored, sponsored_by, sponsored_duration, sponsored_at FROM messages WHERE id = $1",
		messageID,
	).Scan(&m.Content, &m.IsSponsored, &by, &duration, &m.SponsoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	if by != nil {
		m.SponsoredBy = *by
	}
	if duration != nil {
		m.SponsoredDuration = *duration
	}
	return &m, nil
}

// CreditedTokens sums every token credit applied to a user.
func (s *Store) CreditedTokens(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.Db.QueryRow(ctx,
		"SELECT COALESCE(SUM(tokens), 0) FROM processed_orders WHERE user_id = $1 AND purpose = $2",
		userID, string(domain.PurposeJoyTokenPurchase),
	).Scan(&total)
	return total, err
}
