package repository

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/revaly/revaly/internal/migration"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// setupReviews applies the shipped DDL rather than AutoMigrate so these
// tests catch any drift between the migration schema and the model.
func setupReviews(t *testing.T) (*gorm.DB, reviewdomain.Repository, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	ddl, err := fs.ReadFile(migration.Files(), "migrations/0001_init.up.sql")
	require.NoError(t, err)
	// The glebarez sqlite driver does not map the TIMESTAMPTZ decltype to
	// time.Time, so rewrite it to DATETIME for the test database (F6).
	sqliteDDL := strings.ReplaceAll(string(ddl), "TIMESTAMPTZ", "DATETIME")
	for _, stmt := range strings.Split(sqliteDDL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return db, Provide(), node
}

func seedReview(t *testing.T, db *gorm.DB, repo reviewdomain.Repository, node *snowflake.Node, orderID string, trusted bool) *reviewdomain.Review {
	t.Helper()
	review := &reviewdomain.Review{
		ID:           node.Generate(),
		OrderID:      orderID,
		TokenID:      "tok-" + orderID,
		StoreUID:     "store-1",
		ProductID:    "sku-1",
		Stars:        4,
		Text:         "solid product, fast shipping",
		Images:       datatypes.NewJSONSlice([]string{"https://cdn.revaly.io/a.jpg"}),
		TrustedBuyer: trusted,
		Status:       reviewdomain.StatusPending,
		Moderation:   datatypes.JSONMap{},
		AuthorName:   "Jane Miller",
		DisplayName:  "Jane J.",
		CreatedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Insert(context.Background(), db, review))
	return review
}

func TestReviewRoundTripAgainstShippedSchema(t *testing.T) {
	db, repo, node := setupReviews(t)
	ctx := context.Background()

	seeded := seedReview(t, db, repo, node, "order-1", true)

	got, err := repo.FindByID(ctx, db, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.OrderID, got.OrderID)
	assert.Equal(t, seeded.Text, got.Text)
	assert.Equal(t, []string(seeded.Images), []string(got.Images))
	assert.True(t, got.TrustedBuyer)
	assert.Equal(t, reviewdomain.StatusPending, got.Status)

	exists, err := repo.ExistsTrustedByOrder(ctx, db, "order-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsTrustedByOrder(ctx, db, "order-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetStatusTransitionsPendingOnly(t *testing.T) {
	db, repo, node := setupReviews(t)
	ctx := context.Background()

	seeded := seedReview(t, db, repo, node, "order-1", false)
	publishedAt := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	moved, err := repo.SetStatus(ctx, db, seeded.ID, reviewdomain.StatusPublished, datatypes.JSONMap{"score": 0.1}, &publishedAt)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.SetStatus(ctx, db, seeded.ID, reviewdomain.StatusRejected, datatypes.JSONMap{}, nil)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := repo.FindByID(ctx, db, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, reviewdomain.StatusPublished, got.Status)
	require.NotNil(t, got.PublishedAt)
}

func TestListPendingOldestHonorsLimit(t *testing.T) {
	db, repo, node := setupReviews(t)
	ctx := context.Background()

	first := seedReview(t, db, repo, node, "order-1", false)
	second := seedReview(t, db, repo, node, "order-2", false)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	require.NoError(t, db.Exec(`UPDATE reviews SET created_at = ? WHERE id = ?`, second.CreatedAt, second.ID).Error)
	seedReview(t, db, repo, node, "order-3", false)

	page, err := repo.ListPendingOldest(ctx, db, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, first.ID, page[0].ID)
}
