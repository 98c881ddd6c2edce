package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
	pkgdb "github.com/revaly/revaly/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() reviewdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, review *reviewdomain.Review) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO reviews (
			id, order_id, token_id, store_uid, store_name, product_id,
			stars, text, images, trusted_buyer, status, moderation,
			author_show, author_name, display_name, created_at, published_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		review.ID,
		review.OrderID,
		review.TokenID,
		review.StoreUID,
		review.StoreName,
		review.ProductID,
		review.Stars,
		review.Text,
		review.Images,
		review.TrustedBuyer,
		review.Status,
		review.Moderation,
		review.AuthorShow,
		review.AuthorName,
		review.DisplayName,
		review.CreatedAt,
		review.PublishedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*reviewdomain.Review, error) {
	return r.find(ctx, db, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*reviewdomain.Review, error) {
	return r.find(ctx, db, id, pkgdb.LockSuffix(db))
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock string) (*reviewdomain.Review, error) {
	var review reviewdomain.Review
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, token_id, store_uid, store_name, product_id,
		        stars, text, images, trusted_buyer, status, moderation,
		        author_show, author_name, display_name, created_at, published_at
		 FROM reviews
		 WHERE id = ?`+lock,
		id,
	).Scan(&review).Error
	if err != nil {
		return nil, err
	}
	if review.ID == 0 {
		return nil, reviewdomain.ErrReviewNotFound
	}
	return &review, nil
}

func (r *repo) ExistsTrustedByOrder(ctx context.Context, db *gorm.DB, orderID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM reviews WHERE order_id = ? AND trusted_buyer = ?`,
		orderID,
		true,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) SetStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status reviewdomain.Status, moderation datatypes.JSONMap, publishedAt *time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE reviews
		 SET status = ?, moderation = ?, published_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		moderation,
		publishedAt,
		id,
		reviewdomain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SetStoreName(ctx context.Context, db *gorm.DB, id snowflake.ID, name string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reviews SET store_name = ? WHERE id = ?`,
		name,
		id,
	).Error
}

func (r *repo) ListPendingOldest(ctx context.Context, db *gorm.DB, limit int) ([]reviewdomain.Review, error) {
	var reviews []reviewdomain.Review
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, token_id, store_uid, store_name, product_id,
		        stars, text, images, trusted_buyer, status, moderation,
		        author_show, author_name, display_name, created_at, published_at
		 FROM reviews
		 WHERE status = ?
		 ORDER BY created_at, id
		 LIMIT ?`,
		reviewdomain.StatusPending,
		limit,
	).Scan(&reviews).Error
	if err != nil {
		return nil, err
	}
	return reviews, nil
}
