package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/revaly/revaly/internal/clock"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	obsmetrics "github.com/revaly/revaly/internal/observability/metrics"
	"github.com/revaly/revaly/internal/providers/sms"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Reconciler back-fills final SMS delivery status from the provider's
// delivery-report feed onto invites that were previously marked sent.
type Reconciler struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	invites invitedomain.Repository
	sms     sms.Provider
}

func NewReconciler(db *gorm.DB, log *zap.Logger, clk clock.Clock, invites invitedomain.Repository, provider sms.Provider) *Reconciler {
	return &Reconciler{
		db:      db,
		log:     log.Named("outbox.reconciler"),
		clock:   clk,
		invites: invites,
		sms:     provider,
	}
}

// PollDLRs fetches up to max delivery reports and applies each to the
// invite whose sms message id matches. Unmatched reports are dropped;
// replays are no-ops. The returned count is matched invites.
func (r *Reconciler) PollDLRs(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	dlrs, err := r.sms.FetchDLRs(ctx, max)
	if err != nil {
		return 0, fmt.Errorf("fetch dlrs: %w", err)
	}

	metrics := obsmetrics.Pipeline()
	matched := 0
	for _, dlr := range dlrs {
		if dlr.MessageID == "" {
			continue
		}

		invite, err := r.invites.FindBySMSMessageID(ctx, r.db, dlr.MessageID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				r.log.Warn("dlr lookup failed",
					zap.String("message_id", dlr.MessageID), zap.Error(err))
			}
			continue
		}

		res := invitedomain.ChannelResult{
			OK:    dlr.Delivered,
			ID:    dlr.MessageID,
			Error: dlr.Error,
			At:    r.clock.Now(),
		}
		if err := r.invites.ApplyDLR(ctx, r.db, invite.ID, res, dlr.Delivered); err != nil {
			r.log.Warn("applying dlr failed",
				zap.String("message_id", dlr.MessageID), zap.Error(err))
			continue
		}
		matched++
		metrics.IncDLRMatched()
	}
	return matched, nil
}
