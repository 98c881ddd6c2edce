package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// Review is the customer-authored artifact. It is created pending by
// Submit inside the same transaction that marks the token used, then
// promoted to published or rejected by the moderation gate. Reviews are
// never deleted here.
type Review struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID   string       `gorm:"column:order_id" json:"order_id"`
	TokenID   string       `gorm:"column:token_id" json:"token_id,omitempty"`
	StoreUID  string       `gorm:"column:store_uid" json:"store_uid,omitempty"`
	StoreName string       `gorm:"column:store_name" json:"store_name,omitempty"`
	ProductID string       `gorm:"column:product_id" json:"product_id"`

	Stars  int                         `gorm:"column:stars" json:"stars"`
	Text   string                      `gorm:"column:text" json:"text"`
	Images datatypes.JSONSlice[string] `gorm:"column:images" json:"images"`

	TrustedBuyer bool              `gorm:"column:trusted_buyer" json:"trusted_buyer"`
	Status       Status            `gorm:"column:status" json:"status"`
	Moderation   datatypes.JSONMap `gorm:"column:moderation" json:"moderation,omitempty"`

	AuthorShow  bool   `gorm:"column:author_show" json:"author_show"`
	AuthorName  string `gorm:"column:author_name" json:"author_name"`
	DisplayName string `gorm:"column:display_name" json:"display_name"`

	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	PublishedAt *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
}

func (Review) TableName() string { return "reviews" }

func (r *Review) Published() bool { return r.Status == StatusPublished }

type SubmitRequest struct {
	TokenID        string   `json:"token_id"`
	OrderID        string   `json:"order_id"`
	ProductID      string   `json:"product_id"`
	Stars          int      `json:"stars"`
	Text           string   `json:"text"`
	Images         []string `json:"images"`
	AuthorName     string   `json:"author_name"`
	AuthorShowName bool     `json:"author_show_name"`
}

type SubmitResponse struct {
	OK         bool           `json:"ok"`
	ID         snowflake.ID   `json:"id"`
	Published  bool           `json:"published"`
	Moderation map[string]any `json:"moderation,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, review *Review) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Review, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Review, error)

	// ExistsTrustedByOrder reports whether a trusted review already holds
	// the one-per-order slot.
	ExistsTrustedByOrder(ctx context.Context, db *gorm.DB, orderID string) (bool, error)

	// SetStatus transitions status and moderation verdict only when the
	// row is still pending; it reports whether the transition applied.
	SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, moderation datatypes.JSONMap, publishedAt *time.Time) (bool, error)

	SetStoreName(ctx context.Context, db *gorm.DB, id snowflake.ID, name string) error
	ListPendingOldest(ctx context.Context, db *gorm.DB, limit int) ([]Review, error)
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
	Moderate(ctx context.Context, reviewID snowflake.ID) (Status, error)
	SweepPending(ctx context.Context, limit int) (int, error)
}
