package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/joyledger/internal/domain"
)

var unlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ledger_pack_unlocks_total",
	Help: "Affirmation pack unlock attempts by result",
}, []string{"result"})

type AccountStore interface {
	GetBalance(ctx context.Context, userID string) (*domain.UserTokenBalance, error)
	GetMessage(ctx context.Context, messageID string) (*domain.MessageSponsorship, error)
	UnlockPack(ctx context.Context, userID, packID string) (*domain.UnlockResult, error)
}

// AccountService serves balance reads and token spending.
type AccountService struct {
	store  AccountStore
	logger *slog.Logger
}

func NewAccountService(store AccountStore, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, logger: logger}
}

func (s *AccountService) Balance(ctx context.Context, userID string) (*domain.UserTokenBalance, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return b, nil
}

func (s *AccountService) Message(ctx context.Context, messageID string) (*domain.MessageSponsorship, error) {
	m, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr(err)
	}
	return m, nil
}

func (s *AccountService) UnlockPack(ctx context.Context, userID, packID string) (*domain.UnlockResult, error) {
	res, err := s.store.UnlockPack(ctx, userID, packID)
	if err != nil {
		err = storeErr(err)
		switch {
		case errors.Is(err, domain.ErrInsufficientTokens):
			unlocksTotal.WithLabelValues("insufficient").Inc()
		case errors.Is(err, domain.ErrLedgerUnavailable):
			unlocksTotal.WithLabelValues("error").Inc()
			s.logger.ErrorContext(ctx, "Pack unlock failed", "user_id", userID, "pack_id", packID, "error", err)
		default:
			unlocksTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	if res.AlreadyUnlocked {
		unlocksTotal.WithLabelValues("already_unlocked").Inc()
	} else {
		unlocksTotal.WithLabelValues("unlocked").Inc()
		s.logger.InfoContext(ctx, "Pack unlocked", "user_id", userID, "pack_id", packID, "joy_tokens", res.JoyTokens)
	}
	return res, nil
}

var businessErrs = []error{
	domain.ErrUserNotFound,
	domain.ErrMessageNotFound,
	domain.ErrPackNotFound,
	domain.ErrInsufficientTokens,
}

// storeErr keeps business conditions and hides everything else behind
// ErrLedgerUnavailable.
func storeErr(err error) error {
	for _, known := range businessErrs {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, err)
}
