package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/revaly/revaly/internal/clock"
	outboxdomain "github.com/revaly/revaly/internal/outbox/domain"
	pkgdb "github.com/revaly/revaly/pkg/db"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Clock    clock.Clock
	LeaseTTL time.Duration `name:"outbox_lease_ttl" optional:"true"`
}

type sqlStore struct {
	db       *gorm.DB
	clock    clock.Clock
	leaseTTL time.Duration
}

const defaultLeaseTTL = 2 * time.Minute

func Provide(p Params) outboxdomain.Store {
	ttl := p.LeaseTTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &sqlStore{
		db:       p.DB,
		clock:    p.Clock,
		leaseTTL: ttl,
	}
}

// New builds a store directly, outside of fx.
func New(db *gorm.DB, clk clock.Clock, leaseTTL time.Duration) outboxdomain.Store {
	return Provide(Params{DB: db, Clock: clk, LeaseTTL: leaseTTL})
}

func (s *sqlStore) Insert(ctx context.Context, db *gorm.DB, job *outboxdomain.Job) error {
	if db == nil {
		db = s.db
	}
	if job.Payload == nil {
		job.Payload = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_jobs (
			id, invite_id, store_uid, channels, payload, status, attempts,
			next_attempt_at, last_error, dlq, lease_owner, lease_expires_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.InviteID,
		job.StoreUID,
		job.Channels,
		job.Payload,
		job.Status,
		job.Attempts,
		job.NextAttemptAt,
		job.LastError,
		job.DLQ,
		job.LeaseOwner,
		job.LeaseExpiresAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (s *sqlStore) FindByID(ctx context.Context, id snowflake.ID) (*outboxdomain.Job, error) {
	var job outboxdomain.Job
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, invite_id, store_uid, channels, payload, status, attempts,
		        next_attempt_at, last_error, dlq, lease_owner, lease_expires_at,
		        created_at, updated_at
		 FROM outbox_jobs
		 WHERE id = ?`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &job, nil
}

// LeasePendingJobs atomically claims up to limit due jobs for workerID.
// Claimable means pending and due, or processing with an expired lease
// (crash recovery). The select-then-conditional-update runs inside one
// transaction so two racing workers never claim the same job.
func (s *sqlStore) LeasePendingJobs(ctx context.Context, workerID string, limit int) ([]outboxdomain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.clock.Now()
	leaseExpiry := now.Add(s.leaseTTL)

	var leased []outboxdomain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []outboxdomain.Job
		err := tx.WithContext(ctx).Raw(
			`SELECT id, invite_id, store_uid, channels, payload, status, attempts,
			        next_attempt_at, last_error, dlq, lease_owner, lease_expires_at,
			        created_at, updated_at
			 FROM outbox_jobs
			 WHERE (status = ? AND next_attempt_at <= ?)
			    OR (status = ? AND lease_expires_at <= ?)
			 ORDER BY next_attempt_at ASC, id ASC
			 LIMIT ?`+pkgdb.ClaimSuffix(tx),
			outboxdomain.JobStatusPending,
			now,
			outboxdomain.JobStatusProcessing,
			now,
			limit,
		).Scan(&candidates).Error
		if err != nil {
			return err
		}

		for _, job := range candidates {
			result := tx.WithContext(ctx).Exec(
				`UPDATE outbox_jobs
				 SET status = ?, lease_owner = ?, lease_expires_at = ?, updated_at = ?
				 WHERE id = ?
				   AND ((status = ? AND next_attempt_at <= ?)
				     OR (status = ? AND lease_expires_at <= ?))`,
				outboxdomain.JobStatusProcessing,
				workerID,
				leaseExpiry,
				now,
				job.ID,
				outboxdomain.JobStatusPending,
				now,
				outboxdomain.JobStatusProcessing,
				now,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Claimed by a concurrent worker between select and update.
				continue
			}
			job.Status = outboxdomain.JobStatusProcessing
			job.LeaseOwner = &workerID
			job.LeaseExpiresAt = &leaseExpiry
			leased = append(leased, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// CompleteJob releases the lease and applies the final state of a
// processing pass.
func (s *sqlStore) CompleteJob(ctx context.Context, jobID snowflake.ID, req outboxdomain.CompleteRequest) error {
	now := s.clock.Now()
	nextAttempt := req.NextAttemptAt
	if nextAttempt == nil {
		nextAttempt = &now
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE outbox_jobs
		 SET status = ?, attempts = ?, next_attempt_at = ?, last_error = ?, dlq = ?,
		     lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		req.Status,
		req.Attempts,
		*nextAttempt,
		req.LastError,
		req.DLQ,
		now,
		jobID,
	).Error
}
