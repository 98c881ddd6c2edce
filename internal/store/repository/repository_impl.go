package repository

import (
	"context"
	"errors"

	storedomain "github.com/revaly/revaly/internal/store/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() storedomain.Repository {
	return &repo{}
}

func (r *repo) FindByUID(ctx context.Context, db *gorm.DB, storeUID string) (*storedomain.Store, error) {
	var store storedomain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT store_uid, display_name, platform, sms_rate, sms_burst, email_rate, email_burst, created_at, updated_at
		 FROM stores
		 WHERE store_uid = ?`,
		storeUID,
	).Scan(&store).Error
	if err != nil {
		return nil, err
	}
	if store.StoreUID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	return &store, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]storedomain.Store, error) {
	var stores []storedomain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT store_uid, display_name, platform, sms_rate, sms_burst, email_rate, email_burst, created_at, updated_at
		 FROM stores
		 ORDER BY store_uid`,
	).Scan(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, store *storedomain.Store) error {
	if store == nil {
		return errors.New("store is required")
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE stores
		 SET display_name = ?, platform = ?, updated_at = ?
		 WHERE store_uid = ?`,
		store.DisplayName,
		store.Platform,
		store.UpdatedAt,
		store.StoreUID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO stores (store_uid, display_name, platform, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		store.StoreUID,
		store.DisplayName,
		store.Platform,
		store.CreatedAt,
		store.UpdatedAt,
	).Error
}
