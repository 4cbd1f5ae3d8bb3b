package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/pkg/logger"
)

// Job is one maintenance task. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type resetTokenSweeper interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// OutboxRetention deletes outbox rows published longer than Retention ago.
type OutboxRetention struct {
	DB        txRunner
	Outbox    outboxPurger
	Retention time.Duration
	Logger    *logger.Logger

	now func() time.Time
}

func (j *OutboxRetention) Name() string { return "outbox-retention" }

func (j *OutboxRetention) Run(ctx context.Context) (int64, error) {
	if j.DB == nil || j.Outbox == nil {
		return 0, fmt.Errorf("%s: db and outbox repository required", j.Name())
	}
	if j.Retention <= 0 {
		return 0, fmt.Errorf("%s: retention must be positive", j.Name())
	}
	cutoff := clock(j.now)().Add(-j.Retention)

	var deleted int64
	err := j.DB.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.Outbox.DeletePublishedBefore(tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete published outbox rows: %w", err)
	}
	if j.Logger != nil {
		j.Logger.Info(j.Logger.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "cron.outbox_pruned")
	}
	return deleted, nil
}

// ExpiredResetTokens clears password reset digests past their expiry so a
// stale token cannot linger on the account.
type ExpiredResetTokens struct {
	Users  resetTokenSweeper
	Logger *logger.Logger

	now func() time.Time
}

func (j *ExpiredResetTokens) Name() string { return "reset-token-expiry" }

func (j *ExpiredResetTokens) Run(ctx context.Context) (int64, error) {
	if j.Users == nil {
		return 0, fmt.Errorf("%s: users repository required", j.Name())
	}
	cleared, err := j.Users.ClearExpiredResetTokens(ctx, clock(j.now)())
	if err != nil {
		return 0, fmt.Errorf("clear expired reset tokens: %w", err)
	}
	if j.Logger != nil && cleared > 0 {
		j.Logger.Info(j.Logger.WithField(ctx, "rows_cleared", cleared), "cron.reset_tokens_cleared")
	}
	return cleared, nil
}

func clock(now func() time.Time) func() time.Time {
	if now != nil {
		return now
	}
	return func() time.Time { return time.Now().UTC() }
}
