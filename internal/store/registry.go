package store

import (
	"context"
	"sync"
	"time"

	"github.com/revaly/revaly/internal/config"
	storedomain "github.com/revaly/revaly/internal/store/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRefreshInterval = time.Minute

// Registry resolves per-store settings for the rest of the pipeline. It
// holds the whole stores table in memory, refreshed on an interval, so
// the send-path rate limiter never waits on a row lookup. A store created
// between refreshes is fetched through on demand.
type Registry struct {
	db           *gorm.DB
	repo         storedomain.Repository
	log          *zap.Logger
	refreshEvery time.Duration

	mu    sync.RWMutex
	byUID map[string]storedomain.Store
}

func NewRegistry(db *gorm.DB, repo storedomain.Repository, log *zap.Logger, cfg config.Config) *Registry {
	every := cfg.StoreRefreshInterval
	if every <= 0 {
		every = defaultRefreshInterval
	}
	return &Registry{
		db:           db,
		repo:         repo,
		log:          log.Named("store.registry"),
		refreshEvery: every,
		byUID:        map[string]storedomain.Store{},
	}
}

// Refresh replaces the in-memory snapshot with the current table contents.
func (r *Registry) Refresh(ctx context.Context) error {
	stores, err := r.repo.ListAll(ctx, r.db)
	if err != nil {
		return err
	}
	next := make(map[string]storedomain.Store, len(stores))
	for _, st := range stores {
		next[st.StoreUID] = st
	}
	r.mu.Lock()
	r.byUID = next
	r.mu.Unlock()
	return nil
}

func (r *Registry) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn("store refresh failed", zap.Error(err))
			}
		}
	}
}

func (r *Registry) lookup(ctx context.Context, storeUID string) (*storedomain.Store, error) {
	r.mu.RLock()
	st, ok := r.byUID[storeUID]
	r.mu.RUnlock()
	if ok {
		return &st, nil
	}

	found, err := r.repo.FindByUID(ctx, r.db, storeUID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.byUID[storeUID] = *found
	r.mu.Unlock()
	return found, nil
}

// DisplayName returns the store's public display name, empty when unknown.
func (r *Registry) DisplayName(ctx context.Context, storeUID string) (string, error) {
	st, err := r.lookup(ctx, storeUID)
	if err != nil {
		return "", err
	}
	return st.DisplayName, nil
}

// ChannelLimit implements ratelimit.LimitSource. A store without an
// override for the channel reports ok=false so the caller falls back to
// the configured defaults.
func (r *Registry) ChannelLimit(ctx context.Context, storeUID, channel string) (float64, int, bool) {
	st, err := r.lookup(ctx, storeUID)
	if err != nil {
		return 0, 0, false
	}
	switch channel {
	case "sms":
		if st.SMSRate != nil && st.SMSBurst != nil {
			return *st.SMSRate, *st.SMSBurst, true
		}
	case "email":
		if st.EmailRate != nil && st.EmailBurst != nil {
			return *st.EmailRate, *st.EmailBurst, true
		}
	}
	return 0, 0, false
}
