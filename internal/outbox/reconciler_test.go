package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/revaly/revaly/internal/providers/sms"
)

func TestReconciler_PollDLRs_MatchesInviteBySMSMessageID(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)

	// worker pass records the sms result with the provider message id
	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	f.sms.dlrs = []sms.DLR{{MessageID: "msg-1", Delivered: true}}
	matched, err := f.worker.reconciler.PollDLRs(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	invite, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)
	require.NotNil(t, invite.DeliveredAt)
	smsRes, ok := invite.ChannelResult("sms")
	require.True(t, ok)
	assert.True(t, smsRes.OK)
	assert.Equal(t, "msg-1", smsRes.ID)
}

func TestReconciler_PollDLRs_ReplayIsIdempotent(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	job := f.seedJob(t, []string{"sms"}, datatypes.JSONMap{
		"phone":    "+15550001111",
		"sms_text": "leave a review",
	}, 0)
	_, err := f.worker.RunOnce(ctx, 10)
	require.NoError(t, err)

	f.sms.dlrs = []sms.DLR{{MessageID: "msg-1", Delivered: true}}
	_, err = f.worker.reconciler.PollDLRs(ctx, 100)
	require.NoError(t, err)

	first, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.worker.reconciler.PollDLRs(ctx, 100)
	require.NoError(t, err)

	second, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)

	assert.Equal(t, first.SentChannels["sms"], second.SentChannels["sms"])
	assert.Equal(t, first.DeliveredAt.UTC(), second.DeliveredAt.UTC())
}

func TestReconciler_PollDLRs_LeavesSiblingChannelsUntouched(t *testing.T) {
	f := newWorkerFixture(t)
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

	f.sms.dlrs = []sms.DLR{{MessageID: "msg-1", Delivered: false, Error: "handset unreachable"}}
	_, err = f.worker.reconciler.PollDLRs(ctx, 100)
	require.NoError(t, err)

	invite, err := f.invites.FindByID(ctx, f.db, job.InviteID)
	require.NoError(t, err)
	smsRes, ok := invite.ChannelResult("sms")
	require.True(t, ok)
	assert.False(t, smsRes.OK)
	assert.Equal(t, "handset unreachable", smsRes.Error)
	emailRes, ok := invite.ChannelResult("email")
	require.True(t, ok)
	assert.True(t, emailRes.OK)
	assert.Nil(t, invite.DeliveredAt)
}

func TestReconciler_PollDLRs_UnmatchedReportsAreDropped(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.sms.dlrs = []sms.DLR{{MessageID: "unknown-id", Delivered: true}}
	matched, err := f.worker.reconciler.PollDLRs(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, matched)
}

func TestReconciler_PollDLRs_ProviderFailureIsSoft(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	f.sms.dlrsErr = errors.New("provider down")
	matched, err := f.worker.reconciler.PollDLRs(ctx, 100)
	assert.Error(t, err)
	assert.Zero(t, matched)

	// the worker's send path shrugs this off
	_, err = f.worker.RunOnce(ctx, 10)
	assert.NoError(t, err)
}
