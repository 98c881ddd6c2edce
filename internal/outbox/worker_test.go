package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/revaly/revaly/internal/clock"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	inviterepo "github.com/revaly/revaly/internal/invite/repository"
	outboxdomain "github.com/revaly/revaly/internal/outbox/domain"
	outboxrepo "github.com/revaly/revaly/internal/outbox/repository"
	"github.com/revaly/revaly/internal/providers/sms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeSMS struct {
	sent    []string
	id      string
	err     error
	dlrs    []sms.DLR
	dlrsErr error
}

func (f *fakeSMS) Send(ctx context.Context, phone, text string) (string, error) {
	f.sent = append(f.sent, phone)
	return f.id, f.err
}

func (f *fakeSMS) FetchDLRs(ctx context.Context, max int) ([]sms.DLR, error) {
	return f.dlrs, f.dlrsErr
}

type fakeEmail struct {
	sent []string
	id   string
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	f.sent = append(f.sent, to)
	return f.id, f.err
}

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeLimiter) Allow(ctx context.Context, storeUID, channel string) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type workerFixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	store   outboxdomain.Store
	invites invitedomain.Repository
	sms     *fakeSMS
	email   *fakeEmail
	limiter *fakeLimiter
	worker  *Worker
	node    *snowflake.Node
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&outboxdomain.Job{}, &invitedomain.Invite{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := outboxrepo.New(db, clk, 2*time.Minute)
	invites := inviterepo.Provide()
	smsProvider := &fakeSMS{id: "msg-1"}
	emailProvider := &fakeEmail{id: "mail-1"}
	limiter := &fakeLimiter{allowed: true}
	log := zap.NewNop()

	worker := NewWorker(Params{
		DB:         db,
		Log:        log,
		Clock:      clk,
		Store:      store,
		InviteRepo: invites,
		SMS:        smsProvider,
		Email:      emailProvider,
		Limiter:    limiter,
		Reconciler: NewReconciler(db, log, clk, invites, smsProvider),
	})

	return &workerFixture{
		db:      db,
		clock:   clk,
		store:   store,
		invites: invites,
		sms:     smsProvider,
		email:   emailProvider,
		limiter: limiter,
		worker:  worker,
		node:    node,
	}
}

func (f *workerFixture) seedJob(t *testing.T, channels []string, payload datatypes.JSONMap, attempts int) *outboxdomain.Job {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	invite := &invitedomain.Invite{
		ID:           f.node.Generate(),
		TokenID:      fmt.Sprintf("tok-%d", f.node.Generate()),
		OrderID:      "order-1",
		StoreUID:     "store-1",
		SentChannels: datatypes.JSONMap{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.invites.Insert(ctx, f.db, invite))

	job := &outboxdomain.Job{
		ID:            f.node.Generate(),
		InviteID:      invite.ID,
		StoreUID:      "store-1",
		Channels:      datatypes.NewJSONSlice(channels),
		Payload:       payload,
		Status:        outboxdomain.JobStatusPending,
		Attempts:      attempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.store.Insert(ctx, f.db, job))
	return job
}

func TestWorker_RunOnce_AllChannelsSucceed(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms", "email"}, datatypes.JSONMap{
		"phone":         "+15550001111",
		"sms_text":      "leave a review",
		"email_to":      "buyer@example.com",
		"email_subject": "How was your order?",
		"email_html":    "<p>leave a review</p>",
	}, 0)

	processed, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusOK, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.DLQ)
	assert.Nil(t, got.LeaseOwner)
	assert.Nil(t, got.LeaseExpiresAt)

	assert.Equal(t, []string{"+15550001111"}, f.sms.sent)
	assert.Equal(t, []string{"buyer@example.com"}, f.email.sent)

	invite, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)
	smsRes, ok := invite.ChannelResult("sms")
	require.True(t, ok)
	assert.True(t, smsRes.OK)
	assert.Equal(t, "msg-1", smsRes.ID)
	emailRes, ok := invite.ChannelResult("email")
	require.True(t, ok)
	assert.True(t, emailRes.OK)
}

func TestWorker_RunOnce_MissingPayloadChannelNotRequired(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	// email_to absent, so only sms must succeed for the job to be ok
	job := f.seedJob(t, []string{"sms", "email"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)

	processed, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusOK, got.Status)
	assert.Empty(t, f.email.sent)
}

func TestWorker_RunOnce_RateLimitedDefersWithoutAttempt(t *testing.T) {
	f := newWorkerFixture(t)
	f.limiter.allowed = false
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.WithinDuration(t, f.clock.Now().Add(time.Second), got.NextAttemptAt, time.Second)
	assert.Empty(t, f.sms.sent)
}

func TestWorker_RunOnce_LimiterErrorDefersJob(t *testing.T) {
	f := newWorkerFixture(t)
	f.limiter.err = errors.New("redis unavailable")
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Empty(t, f.sms.sent)
}

func TestWorker_RunOnce_FailureSchedulesBackoff(t *testing.T) {
	f := newWorkerFixture(t)
	f.sms.err = errors.New("gateway timeout")
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "gateway timeout", *got.LastError)
	assert.WithinDuration(t, f.clock.Now().Add(Backoff(1)), got.NextAttemptAt, time.Second)

	invite, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)
	smsRes, ok := invite.ChannelResult("sms")
	require.True(t, ok)
	assert.False(t, smsRes.OK)
	assert.Equal(t, "gateway timeout", smsRes.Error)
}

func TestWorker_RunOnce_DeadLettersAtMaxAttempts(t *testing.T) {
	f := newWorkerFixture(t)
	f.sms.err = errors.New("gateway timeout")
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, outboxdomain.MaxAttempts-1)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusFail, got.Status)
	assert.Equal(t, outboxdomain.MaxAttempts, got.Attempts)
	assert.True(t, got.DLQ)
}

func TestWorker_RunOnce_NeverLeavesJobProcessing(t *testing.T) {
	f := newWorkerFixture(t)
	f.sms.err = errors.New("boom")
	ctx := context.Background()

	f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "x",
	}, 0)
	f.seedJob(t, []string{"email"}, datatypes.JSONMap{
		"email_to":      "a@example.com",
		"email_subject": "s",
		"email_html":    "<p>x</p>",
	}, 0)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(1) FROM outbox_jobs WHERE status = ?`,
		outboxdomain.JobStatusProcessing,
	).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestWorker_RunOnce_PartialChannelFailureRetriesJob(t *testing.T) {
	f := newWorkerFixture(t)
	f.email.err = errors.New("smtp refused")
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms", "email"}, datatypes.JSONMap{
		"phone":         "+15550001111",
		"sms_text":      "x",
		"email_to":      "a@example.com",
		"email_subject": "s",
		"email_html":    "<p>x</p>",
	}, 0)

	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	got, err := f.store.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxdomain.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)

	// the successful sms result is preserved next to the email failure
	invite, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)
	smsRes, ok := invite.ChannelResult("sms")
	require.True(t, ok)
	assert.True(t, smsRes.OK)
	emailRes, ok := invite.ChannelResult("email")
	require.True(t, ok)
	assert.False(t, emailRes.OK)
}
