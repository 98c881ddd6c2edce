package repository

import (
	"context"
	"time"

	tokendomain "github.com/revaly/revaly/internal/token/domain"
	pkgdb "github.com/revaly/revaly/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tokendomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, token *tokendomain.Token) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO review_tokens (
			id, store_uid, order_id, product_id, product_ids, platform, public_url,
			created_at, used_at, expires_at, voided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.StoreUID,
		token.OrderID,
		token.ProductID,
		token.ProductIDs,
		token.Platform,
		token.PublicURL,
		token.CreatedAt,
		token.UsedAt,
		token.ExpiresAt,
		token.VoidedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*tokendomain.Token, error) {
	return r.find(ctx, db, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*tokendomain.Token, error) {
	return r.find(ctx, db, id, pkgdb.LockSuffix(db))
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id, lock string) (*tokendomain.Token, error) {
	var token tokendomain.Token
	err := db.WithContext(ctx).Raw(
		`SELECT id, store_uid, order_id, product_id, product_ids, platform, public_url,
		        created_at, used_at, expires_at, voided_at
		 FROM review_tokens
		 WHERE id = ?`+lock,
		id,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == "" {
		return nil, tokendomain.ErrTokenNotFound
	}
	return &token, nil
}

func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE review_tokens
		 SET used_at = ?
		 WHERE id = ? AND used_at IS NULL`,
		at,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Void(ctx context.Context, db *gorm.DB, id string, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE review_tokens
		 SET voided_at = ?
		 WHERE id = ? AND voided_at IS NULL`,
		at,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
