package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChannelResult is the recorded outcome of one channel attempt. It is
// stored as a sub-object of the invite's sent_channels map, keyed by
// channel name.
type ChannelResult struct {
	OK    bool
	ID    string
	Error string
	At    time.Time
}

// AsMap renders the result for storage inside a datatypes.JSONMap.
func (r ChannelResult) AsMap() map[string]interface{} {
	entry := map[string]interface{}{
		"ok": r.OK,
		"at": r.At.UTC().Format(time.RFC3339),
	}
	if r.ID != "" {
		entry["id"] = r.ID
	}
	if r.Error != "" {
		entry["error"] = r.Error
	}
	return entry
}

// ChannelResultFrom decodes a sent_channels sub-object.
func ChannelResultFrom(raw interface{}) (ChannelResult, bool) {
	entry, ok := raw.(map[string]interface{})
	if !ok {
		return ChannelResult{}, false
	}
	var res ChannelResult
	if v, ok := entry["ok"].(bool); ok {
		res.OK = v
	}
	if v, ok := entry["id"].(string); ok {
		res.ID = v
	}
	if v, ok := entry["error"].(string); ok {
		res.Error = v
	}
	if v, ok := entry["at"].(string); ok {
		if at, err := time.Parse(time.RFC3339, v); err == nil {
			res.At = at
		}
	}
	return res, true
}

// Invite is the delivery record paired 1:1 with a review token.
type Invite struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	TokenID  string       `gorm:"column:token_id;uniqueIndex" json:"token_id"`
	OrderID  string       `gorm:"column:order_id" json:"order_id"`
	StoreUID string       `gorm:"column:store_uid" json:"store_uid"`

	CustomerName   string `gorm:"column:customer_name" json:"customer_name"`
	CustomerEmail  string `gorm:"column:customer_email" json:"customer_email"`
	CustomerMobile string `gorm:"column:customer_mobile" json:"customer_mobile"`

	SentAt      *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	Clicks      int        `gorm:"column:clicks" json:"clicks"`

	SentChannels datatypes.JSONMap `gorm:"column:sent_channels" json:"sent_channels"`
	LastSentAt   *time.Time        `gorm:"column:last_sent_at" json:"last_sent_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Invite) TableName() string { return "review_invites" }

// ChannelResult returns the recorded result for a channel, if any.
func (i *Invite) ChannelResult(channel string) (ChannelResult, bool) {
	if i == nil || i.SentChannels == nil {
		return ChannelResult{}, false
	}
	return ChannelResultFrom(i.SentChannels[channel])
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invite *Invite) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invite, error)
	FindByTokenID(ctx context.Context, db *gorm.DB, tokenID string) (*Invite, error)
	FindBySMSMessageID(ctx context.Context, db *gorm.DB, messageID string) (*Invite, error)

	// MergeChannelResult writes one channel's outcome into sent_channels
	// without clobbering sibling channels.
	MergeChannelResult(ctx context.Context, db *gorm.DB, id snowflake.ID, channel string, res ChannelResult) error

	// ApplyDLR upgrades the sms sub-record from a provider delivery
	// receipt. Applying the same receipt twice is a no-op.
	ApplyDLR(ctx context.Context, db *gorm.DB, id snowflake.ID, res ChannelResult, delivered bool) error

	RecordClick(ctx context.Context, db *gorm.DB, tokenID string) error
}
