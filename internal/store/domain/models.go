package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Store is the per-merchant registry row: display name for review
// denormalization plus optional channel rate overrides.
type Store struct {
	StoreUID    string `gorm:"primaryKey;column:store_uid"`
	DisplayName string `gorm:"column:display_name"`
	Platform    string `gorm:"column:platform"`

	SMSRate    *float64 `gorm:"column:sms_rate"`
	SMSBurst   *int     `gorm:"column:sms_burst"`
	EmailRate  *float64 `gorm:"column:email_rate"`
	EmailBurst *int     `gorm:"column:email_burst"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Store) TableName() string { return "stores" }

type Repository interface {
	FindByUID(ctx context.Context, db *gorm.DB, storeUID string) (*Store, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Store, error)
	Upsert(ctx context.Context, db *gorm.DB, store *Store) error
}
