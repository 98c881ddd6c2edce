package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	pkgdb "github.com/revaly/revaly/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() invitedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invite *invitedomain.Invite) error {
	if invite.SentChannels == nil {
		invite.SentChannels = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO review_invites (
			id, token_id, order_id, store_uid, customer_name, customer_email, customer_mobile,
			sent_at, delivered_at, clicks, sent_channels, last_sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invite.ID,
		invite.TokenID,
		invite.OrderID,
		invite.StoreUID,
		invite.CustomerName,
		invite.CustomerEmail,
		invite.CustomerMobile,
		invite.SentAt,
		invite.DeliveredAt,
		invite.Clicks,
		invite.SentChannels,
		invite.LastSentAt,
		invite.CreatedAt,
		invite.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invitedomain.Invite, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByTokenID(ctx context.Context, db *gorm.DB, tokenID string) (*invitedomain.Invite, error) {
	return r.findOne(ctx, db, `token_id = ?`, tokenID)
}

func (r *repo) FindBySMSMessageID(ctx context.Context, db *gorm.DB, messageID string) (*invitedomain.Invite, error) {
	return r.findOne(ctx, db, smsMessageIDExpr(db), messageID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg interface{}) (*invitedomain.Invite, error) {
	var invite invitedomain.Invite
	err := db.WithContext(ctx).Raw(
		`SELECT id, token_id, order_id, store_uid, customer_name, customer_email, customer_mobile,
		        sent_at, delivered_at, clicks, sent_channels, last_sent_at, created_at, updated_at
		 FROM review_invites
		 WHERE `+where+`
		 LIMIT 1`,
		arg,
	).Scan(&invite).Error
	if err != nil {
		return nil, err
	}
	if invite.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &invite, nil
}

// smsMessageIDExpr matches the sms sub-record's provider message id for
// the connected dialect.
func smsMessageIDExpr(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres":
		return `sent_channels -> 'sms' ->> 'id' = ?`
	case "mysql":
		return `JSON_UNQUOTE(JSON_EXTRACT(sent_channels, '$.sms.id')) = ?`
	default:
		return `json_extract(sent_channels, '$.sms.id') = ?`
	}
}

func (r *repo) MergeChannelResult(ctx context.Context, db *gorm.DB, id snowflake.ID, channel string, res invitedomain.ChannelResult) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invite, err := r.lockByID(ctx, tx, id)
		if err != nil {
			return err
		}

		channels := invite.SentChannels
		if channels == nil {
			channels = datatypes.JSONMap{}
		}
		channels[channel] = res.AsMap()

		now := res.At.UTC()
		return tx.WithContext(ctx).Exec(
			`UPDATE review_invites
			 SET sent_channels = ?,
			     sent_at = COALESCE(sent_at, ?),
			     last_sent_at = ?,
			     updated_at = ?
			 WHERE id = ?`,
			channels,
			now,
			now,
			now,
			id,
		).Error
	})
}

func (r *repo) ApplyDLR(ctx context.Context, db *gorm.DB, id snowflake.ID, res invitedomain.ChannelResult, delivered bool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invite, err := r.lockByID(ctx, tx, id)
		if err != nil {
			return err
		}

		// Replaying the same receipt must not move timestamps.
		if current, ok := invite.ChannelResult("sms"); ok {
			if current.ID == res.ID && current.OK == res.OK && current.Error == res.Error {
				if !delivered || invite.DeliveredAt != nil {
					return nil
				}
				return tx.WithContext(ctx).Exec(
					`UPDATE review_invites
					 SET delivered_at = COALESCE(delivered_at, ?), updated_at = ?
					 WHERE id = ?`,
					res.At.UTC(),
					res.At.UTC(),
					id,
				).Error
			}
		}

		channels := invite.SentChannels
		if channels == nil {
			channels = datatypes.JSONMap{}
		}
		channels["sms"] = res.AsMap()

		now := res.At.UTC()
		if delivered {
			return tx.WithContext(ctx).Exec(
				`UPDATE review_invites
				 SET sent_channels = ?,
				     delivered_at = COALESCE(delivered_at, ?),
				     updated_at = ?
				 WHERE id = ?`,
				channels,
				now,
				now,
				id,
			).Error
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE review_invites
			 SET sent_channels = ?, updated_at = ?
			 WHERE id = ?`,
			channels,
			now,
			id,
		).Error
	})
}

func (r *repo) RecordClick(ctx context.Context, db *gorm.DB, tokenID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE review_invites
		 SET clicks = clicks + 1, updated_at = ?
		 WHERE token_id = ?`,
		time.Now().UTC(),
		tokenID,
	).Error
}

func (r *repo) lockByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invitedomain.Invite, error) {
	var invite invitedomain.Invite
	err := tx.WithContext(ctx).Raw(
		`SELECT id, token_id, order_id, store_uid, sent_at, delivered_at, clicks, sent_channels
		 FROM review_invites
		 WHERE id = ?`+pkgdb.LockSuffix(tx),
		id,
	).Scan(&invite).Error
	if err != nil {
		return nil, err
	}
	if invite.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &invite, nil
}
