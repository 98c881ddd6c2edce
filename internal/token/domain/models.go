package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Token grants permission to submit exactly one review for one order.
// Tokens are never deleted; voiding and expiry are soft states kept for
// audit.
type Token struct {
	ID        string `gorm:"primaryKey" json:"id"`
	StoreUID  string `gorm:"column:store_uid" json:"store_uid"`
	OrderID   string `gorm:"column:order_id" json:"order_id"`
	ProductID string `gorm:"column:product_id" json:"product_id"`

	ProductIDs datatypes.JSONSlice[string] `gorm:"column:product_ids" json:"product_ids"`
	Platform   string                      `gorm:"column:platform" json:"platform"`
	PublicURL  string                      `gorm:"column:public_url" json:"public_url"`

	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UsedAt    *time.Time `gorm:"column:used_at" json:"used_at,omitempty"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	VoidedAt  *time.Time `gorm:"column:voided_at" json:"voided_at,omitempty"`
}

func (Token) TableName() string { return "review_tokens" }

// Validate checks redemption preconditions against the supplied order.
func (t *Token) Validate(orderID string, now time.Time) error {
	if t.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}
	if t.VoidedAt != nil {
		return ErrTokenVoided
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}
	if t.OrderID != orderID {
		return ErrTokenOrderMismatch
	}
	return nil
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, token *Token) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Token, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*Token, error)

	// MarkUsed stamps used_at once; a second call reports false.
	MarkUsed(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error)
	Void(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error)
}

// Customer is the contact block an upstream fulfillment event carries.
type Customer struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

type IssueRequest struct {
	StoreUID   string     `json:"store_uid"`
	OrderID    string     `json:"order_id"`
	ProductID  string     `json:"product_id"`
	ProductIDs []string   `json:"product_ids"`
	Platform   string     `json:"platform"`
	Customer   Customer   `json:"customer"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*Token, error)
	Void(ctx context.Context, tokenID string) error
}
