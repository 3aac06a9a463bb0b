package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tondonate/internal/alerting"
	"tondonate/internal/config"
	"tondonate/internal/scheduler"
	"tondonate/internal/storage"
	"tondonate/internal/verify"
)

var nanoPerTon = decimal.NewFromInt(1_000_000_000)

// Service periodically re-verifies pending claims against the chain. A
// screenshot proof whose transaction later lands, or an earlier "not
// verified yet" answer the indexer had not caught up with, is upgraded by
// appending a fresh verified record for the same claim.
type Service struct {
	scheduler *scheduler.Scheduler
	verifier  *verify.Verifier
	store     storage.VerificationStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	window  time.Duration
	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the recheck service.
func New(cfg *config.Config, sched *scheduler.Scheduler, verifier *verify.Verifier, store storage.VerificationStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		verifier:  verifier,
		store:     store,
		notifier:  notifier,
		logger:    logger.With().Str("component", "recheck_worker").Logger(),
		window:    cfg.Worker.RecheckWindow,
		locker:    locker,
		lockKey:   cfg.Worker.AdvisoryLockKey,
	}
}

// Run begins the recheck loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Recheck)
}

// Recheck processes one sweep over pending claims.
func (s *Service) Recheck(ctx context.Context) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("skip sweep because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	since := time.Now().UTC().Add(-s.window)
	pending, err := s.store.ListPendingClaims(ctx, since)
	if err != nil {
		return fmt.Errorf("list pending claims: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	s.logger.Info().Int("pending", len(pending)).Msg("rechecking pending claims")

	for _, rec := range pending {
		if err := s.recheckOne(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("claim_ref", rec.ClaimRef).Msg("recheck failed")
		}
	}
	return nil
}

func (s *Service) recheckOne(ctx context.Context, rec storage.VerificationRecord) error {
	claim := verify.Claim{
		Ref:       rec.ClaimRef,
		MinAmount: rec.MinAmount,
	}
	if rec.FromAddress != nil {
		claim.FromAddress = *rec.FromAddress
	}
	if rec.SinceTS != nil {
		claim.Since = *rec.SinceTS
	}

	result, err := s.verifier.Verify(ctx, claim)
	if err != nil {
		return err
	}
	if !result.Verified {
		return nil
	}

	s.logger.Info().
		Str("claim_ref", rec.ClaimRef).
		Str("via", result.Via).
		Int64("amount_nano", result.Amount).
		Msg("pending claim verified on chain")

	if s.notifier != nil {
		note := alerting.Notification{
			Kind:      alerting.EventDonationVerified,
			ClaimRef:  rec.ClaimRef,
			AmountTon: decimal.NewFromInt(result.Amount).Div(nanoPerTon),
			Via:       result.Via,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Str("claim_ref", rec.ClaimRef).Msg("failed to dispatch notification")
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
