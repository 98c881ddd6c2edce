package outbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/revaly/revaly/internal/clock"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	obsmetrics "github.com/revaly/revaly/internal/observability/metrics"
	outboxdomain "github.com/revaly/revaly/internal/outbox/domain"
	"github.com/revaly/revaly/internal/providers/email"
	"github.com/revaly/revaly/internal/providers/sms"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Limiter answers per-store, per-channel send admission. Denial defers
// the whole job; it is not a failure.
type Limiter interface {
	Allow(ctx context.Context, storeUID, channel string) (bool, error)
}

// Sweeper re-moderates reviews left pending, a bounded page at a time.
type Sweeper interface {
	SweepPending(ctx context.Context, limit int) (int, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Store      outboxdomain.Store
	InviteRepo invitedomain.Repository
	SMS        sms.Provider
	Email      email.Provider
	Limiter    Limiter
	Reconciler *Reconciler
	Sweeper    Sweeper `optional:"true"`
	Config     Config  `optional:"true"`
}

// Worker drives leased outbox jobs through their channels. One run
// processes jobs sequentially; concurrency across worker processes is
// handled entirely by the store's leasing.
type Worker struct {
	workerID   string
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	store      outboxdomain.Store
	invites    invitedomain.Repository
	sms        sms.Provider
	email      email.Provider
	limiter    Limiter
	reconciler *Reconciler
	sweeper    Sweeper
}

func NewWorker(p Params) *Worker {
	host, _ := os.Hostname()
	return &Worker{
		workerID:   fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
		db:         p.DB,
		log:        p.Log.Named("outbox.worker"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		store:      p.Store,
		invites:    p.InviteRepo,
		sms:        p.SMS,
		email:      p.Email,
		limiter:    p.Limiter,
		reconciler: p.Reconciler,
		sweeper:    p.Sweeper,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
		if _, err := w.RunOnce(runCtx, w.cfg.BatchSize); err != nil {
			w.log.Warn("outbox run failed", zap.Error(err))
		}
		w.sweep(runCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce leases up to batchSize jobs, processes each, then absorbs one
// page of delivery receipts. It returns the number of jobs processed.
// Per-job failures are persisted on the job, never returned.
func (w *Worker) RunOnce(ctx context.Context, batchSize int) (int, error) {
	start := w.clock.Now()
	metrics := obsmetrics.Pipeline()
	metrics.IncWorkerRun()
	defer func() {
		metrics.ObserveRunDuration(time.Since(start))
	}()

	jobs, err := w.store.LeasePendingJobs(ctx, w.workerID, batchSize)
	if err != nil {
		return 0, fmt.Errorf("lease jobs: %w", err)
	}

	for i := range jobs {
		w.processJob(ctx, &jobs[i])
	}

	if matched, err := w.reconciler.PollDLRs(ctx, w.cfg.DLRPageSize); err != nil {
		w.log.Warn("dlr reconciliation failed", zap.Error(err))
	} else if matched > 0 {
		w.log.Info("delivery receipts reconciled", zap.Int("matched", matched))
	}

	return len(jobs), nil
}

// processJob walks the job's channels in their declared order and
// promotes the job to ok, a backoff retry, or the dead-letter state.
// Every outcome goes through CompleteJob so the lease is always released.
func (w *Worker) processJob(ctx context.Context, job *outboxdomain.Job) {
	metrics := obsmetrics.Pipeline()
	log := w.log.With(
		zap.Int64("job_id", int64(job.ID)),
		zap.String("store_uid", job.StoreUID),
	)

	failed := false
	rateLimited := false
	var lastError *string

	for _, channel := range job.Channels {
		if !channelRequired(job, channel) {
			continue
		}

		allowed, err := w.limiter.Allow(ctx, job.StoreUID, channel)
		if err != nil {
			log.Warn("rate limiter unavailable, deferring job",
				zap.String("channel", channel), zap.Error(err))
			rateLimited = true
			break
		}
		if !allowed {
			rateLimited = true
			break
		}

		res := w.send(ctx, job, channel)
		if res.OK {
			metrics.IncChannelSend(channel, "ok")
		} else {
			metrics.IncChannelSend(channel, "error")
			failed = true
			msg := res.Error
			lastError = &msg
		}

		if err := w.invites.MergeChannelResult(ctx, w.db, job.InviteID, channel, res); err != nil {
			log.Warn("recording channel result failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}

	now := w.clock.Now()

	if rateLimited {
		// A denied slot is a scheduling signal: retry shortly without
		// consuming the job's attempt budget.
		next := now.Add(w.cfg.RateLimitDelay)
		w.complete(ctx, log, job.ID, outboxdomain.CompleteRequest{
			Status:        outboxdomain.JobStatusPending,
			Attempts:      job.Attempts,
			NextAttemptAt: &next,
			LastError:     job.LastError,
		})
		metrics.IncJobProcessed("rate_limited")
		return
	}

	attempts := job.Attempts + 1

	if !failed {
		w.complete(ctx, log, job.ID, outboxdomain.CompleteRequest{
			Status:   outboxdomain.JobStatusOK,
			Attempts: attempts,
		})
		metrics.IncJobProcessed("ok")
		return
	}

	if attempts >= outboxdomain.MaxAttempts {
		w.complete(ctx, log, job.ID, outboxdomain.CompleteRequest{
			Status:    outboxdomain.JobStatusFail,
			Attempts:  attempts,
			LastError: lastError,
			DLQ:       true,
		})
		metrics.IncJobProcessed("fail")
		metrics.IncDeadLettered()
		log.Warn("job dead-lettered",
			zap.Int("attempts", attempts),
			zap.Stringp("last_error", lastError),
		)
		return
	}

	next := now.Add(Backoff(attempts))
	w.complete(ctx, log, job.ID, outboxdomain.CompleteRequest{
		Status:        outboxdomain.JobStatusPending,
		Attempts:      attempts,
		NextAttemptAt: &next,
		LastError:     lastError,
	})
	metrics.IncJobProcessed("retry")
}

// channelRequired reports whether the channel's payload is present. A
// missing payload makes the channel optional: it neither sends nor
// blocks job success.
func channelRequired(job *outboxdomain.Job, channel string) bool {
	switch channel {
	case outboxdomain.ChannelSMS:
		return job.PayloadString(outboxdomain.PayloadPhone) != ""
	case outboxdomain.ChannelEmail:
		return job.PayloadString(outboxdomain.PayloadEmailTo) != ""
	default:
		return false
	}
}

func (w *Worker) send(ctx context.Context, job *outboxdomain.Job, channel string) invitedomain.ChannelResult {
	at := w.clock.Now()

	var id string
	var err error
	switch channel {
	case outboxdomain.ChannelSMS:
		id, err = w.sms.Send(ctx,
			job.PayloadString(outboxdomain.PayloadPhone),
			job.PayloadString(outboxdomain.PayloadSMSText),
		)
	case outboxdomain.ChannelEmail:
		id, err = w.email.Send(ctx,
			job.PayloadString(outboxdomain.PayloadEmailTo),
			job.PayloadString(outboxdomain.PayloadEmailSubject),
			job.PayloadString(outboxdomain.PayloadEmailHTML),
		)
	default:
		return invitedomain.ChannelResult{Error: "unknown channel " + channel, At: at}
	}

	if err != nil {
		return invitedomain.ChannelResult{Error: err.Error(), At: at}
	}
	return invitedomain.ChannelResult{OK: true, ID: id, At: at}
}

func (w *Worker) complete(ctx context.Context, log *zap.Logger, jobID snowflake.ID, req outboxdomain.CompleteRequest) {
	if err := w.store.CompleteJob(ctx, jobID, req); err != nil {
		log.Error("completing job failed", zap.Error(err))
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if w.sweeper == nil {
		return
	}
	if swept, err := w.sweeper.SweepPending(ctx, w.cfg.SweepPageSize); err != nil {
		w.log.Warn("moderation sweep failed", zap.Error(err))
	} else if swept > 0 {
		w.log.Info("pending reviews re-moderated", zap.Int("count", swept))
	}
}
