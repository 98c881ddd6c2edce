package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/revaly/revaly/internal/clock"
	"github.com/revaly/revaly/internal/config"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	inviterepo "github.com/revaly/revaly/internal/invite/repository"
	outboxdomain "github.com/revaly/revaly/internal/outbox/domain"
	outboxrepo "github.com/revaly/revaly/internal/outbox/repository"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
	tokenrepo "github.com/revaly/revaly/internal/token/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	svc     tokendomain.Service
	tokens  tokendomain.Repository
	invites invitedomain.Repository
	outbox  outboxdomain.Store
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tokendomain.Token{},
		&invitedomain.Invite{},
		&outboxdomain.Job{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := tokenrepo.Provide()
	invites := inviterepo.Provide()
	store := outboxrepo.New(db, clk, 2*time.Minute)

	cfg := config.Config{PublicBaseURL: "https://reviews.example.com"}

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Config:     cfg,
		GenID:      node,
		Clock:      clk,
		TokenRepo:  tokens,
		InviteRepo: invites,
		OutboxSt:   store,
	})

	return &fixture{db: db, clock: clk, svc: svc, tokens: tokens, invites: invites, outbox: store}
}

func TestIssue_CreatesTokenInviteAndJob(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, tokendomain.IssueRequest{
		StoreUID:  "store-1",
		OrderID:   "order-1",
		ProductID: "prod-1",
		Platform:  "shopify",
		Customer: tokendomain.Customer{
			Name:   "Jane Miller",
			Email:  "jane@example.com",
			Mobile: "+15550001111",
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.ID)
	assert.Equal(t, "https://reviews.example.com/r/"+token.ID, token.PublicURL)
	assert.Nil(t, token.UsedAt)

	invite, err := f.invites.FindByTokenID(ctx, f.db, token.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", invite.OrderID)
	assert.Equal(t, "jane@example.com", invite.CustomerEmail)

	jobs, err := f.outbox.LeasePendingJobs(ctx, "worker-t", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, invite.ID, job.InviteID)
	assert.Equal(t, []string{"sms", "email"}, []string(job.Channels))
	assert.Equal(t, "+15550001111", job.PayloadString(outboxdomain.PayloadPhone))
	assert.Contains(t, job.PayloadString(outboxdomain.PayloadSMSText), token.PublicURL)
	assert.Contains(t, job.PayloadString(outboxdomain.PayloadSMSText), "Jane")
	assert.Equal(t, "jane@example.com", job.PayloadString(outboxdomain.PayloadEmailTo))
	assert.Contains(t, job.PayloadString(outboxdomain.PayloadEmailHTML), token.PublicURL)
}

func TestIssue_EmailOnlyCustomer(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, tokendomain.IssueRequest{
		StoreUID: "store-1",
		OrderID:  "order-2",
		Customer: tokendomain.Customer{Email: "jane@example.com"},
	})
	require.NoError(t, err)

	jobs, err := f.outbox.LeasePendingJobs(ctx, "worker-t", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"email"}, []string(jobs[0].Channels))
	assert.Empty(t, jobs[0].PayloadString(outboxdomain.PayloadPhone))
	_ = token
}

func TestIssue_RejectsMissingContact(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.Issue(context.Background(), tokendomain.IssueRequest{
		StoreUID: "store-1",
		OrderID:  "order-3",
	})
	assert.ErrorIs(t, err, tokendomain.ErrInvalidRequest)
}

func TestIssue_RejectsMissingOrder(t *testing.T) {
	f := setupService(t)

	_, err := f.svc.Issue(context.Background(), tokendomain.IssueRequest{
		StoreUID: "store-1",
		Customer: tokendomain.Customer{Email: "jane@example.com"},
	})
	assert.ErrorIs(t, err, tokendomain.ErrInvalidRequest)
}

func TestVoid(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	token, err := f.svc.Issue(ctx, tokendomain.IssueRequest{
		StoreUID: "store-1",
		OrderID:  "order-4",
		Customer: tokendomain.Customer{Email: "jane@example.com"},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Void(ctx, token.ID))

	got, err := f.tokens.FindByID(ctx, f.db, token.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VoidedAt)
	assert.ErrorIs(t, got.Validate("order-4", f.clock.Now()), tokendomain.ErrTokenVoided)
}

func TestVoid_UnknownToken(t *testing.T) {
	f := setupService(t)

	err := f.svc.Void(context.Background(), "nope")
	assert.ErrorIs(t, err, tokendomain.ErrTokenNotFound)
}
