package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupInvites(t *testing.T) (*gorm.DB, invitedomain.Repository, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invitedomain.Invite{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return db, Provide(), node
}

func seedInvite(t *testing.T, db *gorm.DB, repo invitedomain.Repository, node *snowflake.Node) *invitedomain.Invite {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	invite := &invitedomain.Invite{
		ID:             node.Generate(),
		TokenID:        fmt.Sprintf("tok-%d", node.Generate()),
		OrderID:        "order-1",
		StoreUID:       "store-1",
		CustomerMobile: "+15550001111",
		SentChannels:   datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.Insert(context.Background(), db, invite))
	return invite
}

func TestMergeChannelResult_PreservesSiblingChannels(t *testing.T) {
	db, repo, node := setupInvites(t)
	ctx := context.Background()
	invite := seedInvite(t, db, repo, node)
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: true, ID: "msg-1", At: at}))
	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "email",
		invitedomain.ChannelResult{OK: false, Error: "smtp refused", At: at.Add(time.Second)}))

	got, err := repo.FindByID(ctx, db, invite.ID)
	require.NoError(t, err)

	smsRes, ok := got.ChannelResult("sms")
	require.True(t, ok)
	assert.True(t, smsRes.OK)
	assert.Equal(t, "msg-1", smsRes.ID)

	emailRes, ok := got.ChannelResult("email")
	require.True(t, ok)
	assert.False(t, emailRes.OK)
	assert.Equal(t, "smtp refused", emailRes.Error)
}

func TestMergeChannelResult_LastWriteWinsPerChannel(t *testing.T) {
	db, repo, node := setupInvites(t)
	ctx := context.Background()
	invite := seedInvite(t, db, repo, node)
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: false, Error: "gateway timeout", At: at}))
	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: true, ID: "msg-2", At: at.Add(time.Minute)}))

	got, err := repo.FindByID(ctx, db, invite.ID)
	require.NoError(t, err)

	smsRes, ok := got.ChannelResult("sms")
	require.True(t, ok)
	assert.True(t, smsRes.OK)
	assert.Equal(t, "msg-2", smsRes.ID)
	assert.Empty(t, smsRes.Error)
}

func TestMergeChannelResult_StampsSentAtOnce(t *testing.T) {
	db, repo, node := setupInvites(t)
	ctx := context.Background()
	invite := seedInvite(t, db, repo, node)
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: true, ID: "msg-1", At: at}))
	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: true, ID: "msg-2", At: at.Add(time.Hour)}))

	got, err := repo.FindByID(ctx, db, invite.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SentAt)
	require.NotNil(t, got.LastSentAt)
	assert.Equal(t, at, got.SentAt.UTC())
	assert.Equal(t, at.Add(time.Hour), got.LastSentAt.UTC())
}

func TestFindBySMSMessageID(t *testing.T) {
	db, repo, node := setupInvites(t)
	ctx := context.Background()
	invite := seedInvite(t, db, repo, node)
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, repo.MergeChannelResult(ctx, db, invite.ID, "sms",
		invitedomain.ChannelResult{OK: true, ID: "msg-42", At: at}))

	got, err := repo.FindBySMSMessageID(ctx, db, "msg-42")
	require.NoError(t, err)
	assert.Equal(t, invite.ID, got.ID)

	_, err = repo.FindBySMSMessageID(ctx, db, "msg-404")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRecordClick(t *testing.T) {
	db, repo, node := setupInvites(t)
	ctx := context.Background()
	invite := seedInvite(t, db, repo, node)

	require.NoError(t, repo.RecordClick(ctx, db, invite.TokenID))
	require.NoError(t, repo.RecordClick(ctx, db, invite.TokenID))

	got, err := repo.FindByID(ctx, db, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Clicks)
}
