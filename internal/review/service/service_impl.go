package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/revaly/revaly/internal/clock"
	"github.com/revaly/revaly/internal/config"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	"github.com/revaly/revaly/internal/moderation"
	obsmetrics "github.com/revaly/revaly/internal/observability/metrics"
	"github.com/revaly/revaly/internal/providers/email"
	"github.com/revaly/revaly/internal/providers/sms"
	"github.com/revaly/revaly/internal/ratelimit"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxAuthorNameLen = 60
	sideEffectWindow = 10 * time.Second
	sweepLockKey     = "moderation:sweep"
	sweepLockTTL     = 30 * time.Second
)

// Directory resolves a store's public display name.
type Directory interface {
	DisplayName(ctx context.Context, storeUID string) (string, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	ReviewRepo reviewdomain.Repository
	TokenRepo  tokendomain.Repository
	InviteRepo invitedomain.Repository
	Moderation moderation.Client
	SMS        sms.Provider
	Email      email.Provider
	Stores     Directory         `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	genID      *snowflake.Node
	clock      clock.Clock
	reviews    reviewdomain.Repository
	tokens     tokendomain.Repository
	invites    invitedomain.Repository
	moderation moderation.Client
	sms        sms.Provider
	email      email.Provider
	stores     Directory
	locker     *ratelimit.Locker
}

func NewService(p Params) reviewdomain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("review.service"),
		cfg:        p.Config,
		genID:      p.GenID,
		clock:      p.Clock,
		reviews:    p.ReviewRepo,
		tokens:     p.TokenRepo,
		invites:    p.InviteRepo,
		moderation: p.Moderation,
		sms:        p.SMS,
		email:      p.Email,
		stores:     p.Stores,
		locker:     p.Locker,
	}
}

// Submit validates a redemption and creates the review. With a token the
// five token checks and both writes happen in one transaction, so a
// racing second submission for the same order deterministically loses.
// Without a token the review is accepted untrusted. Moderation of the
// new review runs synchronously after commit.
func (s *service) Submit(ctx context.Context, req reviewdomain.SubmitRequest) (reviewdomain.SubmitResponse, error) {
	if req.Stars < 1 || req.Stars > 5 {
		return reviewdomain.SubmitResponse{}, reviewdomain.ErrInvalidStars
	}
	images, err := s.validateImages(req.Images)
	if err != nil {
		return reviewdomain.SubmitResponse{}, err
	}

	now := s.clock.Now()
	author := sanitizeAuthorName(req.AuthorName)
	display := author
	if !req.AuthorShowName {
		display = maskDisplayName(author)
	}

	review := &reviewdomain.Review{
		ID:          s.genID.Generate(),
		OrderID:     req.OrderID,
		TokenID:     req.TokenID,
		ProductID:   req.ProductID,
		Stars:       req.Stars,
		Text:        req.Text,
		Images:      datatypes.NewJSONSlice(images),
		Status:      reviewdomain.StatusPending,
		AuthorShow:  req.AuthorShowName,
		AuthorName:  author,
		DisplayName: display,
		CreatedAt:   now,
	}

	if req.TokenID == "" {
		review.TrustedBuyer = false
		if err := s.reviews.Insert(ctx, s.db, review); err != nil {
			return reviewdomain.SubmitResponse{}, fmt.Errorf("insert review: %w", err)
		}
	} else {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			token, err := s.tokens.FindByIDForUpdate(ctx, tx, req.TokenID)
			if err != nil {
				return err
			}
			if err := token.Validate(req.OrderID, now); err != nil {
				return err
			}
			exists, err := s.reviews.ExistsTrustedByOrder(ctx, tx, req.OrderID)
			if err != nil {
				return err
			}
			if exists {
				return reviewdomain.ErrDuplicateReview
			}

			review.TrustedBuyer = true
			review.StoreUID = token.StoreUID
			if review.ProductID == "" {
				review.ProductID = token.ProductID
			}
			if err := s.reviews.Insert(ctx, tx, review); err != nil {
				return fmt.Errorf("insert review: %w", err)
			}

			used, err := s.tokens.MarkUsed(ctx, tx, token.ID, now)
			if err != nil {
				return err
			}
			if !used {
				return tokendomain.ErrTokenAlreadyUsed
			}
			return nil
		})
		if err != nil {
			return reviewdomain.SubmitResponse{}, err
		}

		go s.denormalizeStoreName(review.ID, review.StoreUID)
	}

	status, err := s.Moderate(ctx, review.ID)
	if err != nil {
		return reviewdomain.SubmitResponse{}, err
	}

	moderated, err := s.reviews.FindByID(ctx, s.db, review.ID)
	if err != nil {
		return reviewdomain.SubmitResponse{}, err
	}
	return reviewdomain.SubmitResponse{
		OK:         true,
		ID:         review.ID,
		Published:  status == reviewdomain.StatusPublished,
		Moderation: map[string]any(moderated.Moderation),
	}, nil
}

// Moderate gates a pending review through the verdict service. It only
// acts on pending rows; re-invocation reports the current status. A
// verdict transport failure rejects rather than leaving text pending
// against an unreachable service.
func (s *service) Moderate(ctx context.Context, reviewID snowflake.ID) (reviewdomain.Status, error) {
	review, err := s.reviews.FindByID(ctx, s.db, reviewID)
	if err != nil {
		return "", err
	}
	if review.Status != reviewdomain.StatusPending {
		return review.Status, nil
	}

	verdict, verr := s.moderation.Verdict(ctx, moderation.VerdictRequest{
		Text:   review.Text,
		Images: review.Images,
		Stars:  review.Stars,
	})

	var (
		status      reviewdomain.Status
		publishedAt *time.Time
		mod         datatypes.JSONMap
	)
	switch {
	case verr != nil:
		status = reviewdomain.StatusRejected
		mod = datatypes.JSONMap{
			"flags":    []any{"moderation_error"},
			"category": "moderation_error",
			"error":    verr.Error(),
		}
		s.log.Warn("moderation verdict failed",
			zap.Int64("review_id", int64(reviewID)), zap.Error(verr))
	case verdict.OK:
		status = reviewdomain.StatusPublished
		now := s.clock.Now()
		publishedAt = &now
		mod = verdictMap(verdict)
	default:
		status = reviewdomain.StatusRejected
		mod = verdictMap(verdict)
	}

	applied, err := s.reviews.SetStatus(ctx, s.db, reviewID, status, mod, publishedAt)
	if err != nil {
		return "", err
	}
	if !applied {
		// Lost a race with another moderator; report what won.
		current, err := s.reviews.FindByID(ctx, s.db, reviewID)
		if err != nil {
			return "", err
		}
		return current.Status, nil
	}

	obsmetrics.Pipeline().IncModerationVerdict(string(status))
	if status == reviewdomain.StatusRejected {
		go s.notifyRejection(review)
	}
	return status, nil
}

// SweepPending re-moderates the oldest pending reviews, one bounded page
// per call. Concurrent sweepers single-flight through the Redis lock.
func (s *service) SweepPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				s.log.Warn("releasing sweep lock failed", zap.Error(err))
			}
		}()
	}

	pending, err := s.reviews.ListPendingOldest(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range pending {
		if _, err := s.Moderate(ctx, pending[i].ID); err != nil {
			s.log.Warn("sweep moderation failed",
				zap.Int64("review_id", int64(pending[i].ID)), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// denormalizeStoreName copies the store's display name onto the review.
// Best effort; a failure never touches the submission result.
func (s *service) denormalizeStoreName(reviewID snowflake.ID, storeUID string) {
	if s.stores == nil || storeUID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectWindow)
	defer cancel()

	name, err := s.stores.DisplayName(ctx, storeUID)
	if err != nil || name == "" {
		if err != nil {
			s.log.Warn("store name lookup failed",
				zap.String("store_uid", storeUID), zap.Error(err))
		}
		return
	}
	if err := s.reviews.SetStoreName(ctx, s.db, reviewID, name); err != nil {
		s.log.Warn("store name denormalization failed",
			zap.Int64("review_id", int64(reviewID)), zap.Error(err))
	}
}

// notifyRejection tells the customer their review was not published,
// through whichever contact the original invite carried. Courtesy only;
// failures are swallowed.
func (s *service) notifyRejection(review *reviewdomain.Review) {
	if review.TokenID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectWindow)
	defer cancel()

	invite, err := s.invites.FindByTokenID(ctx, s.db, review.TokenID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("rejection notice invite lookup failed",
				zap.String("token_id", review.TokenID), zap.Error(err))
		}
		return
	}

	text := "Unfortunately your review could not be published. Please review our content guidelines and try again."
	switch {
	case invite.CustomerMobile != "":
		if _, err := s.sms.Send(ctx, invite.CustomerMobile, text); err != nil {
			s.log.Warn("rejection notice sms failed", zap.Error(err))
		}
	case invite.CustomerEmail != "":
		if _, err := s.email.Send(ctx, invite.CustomerEmail, "About your recent review", "<p>"+text+"</p>"); err != nil {
			s.log.Warn("rejection notice email failed", zap.Error(err))
		}
	}
}

func (s *service) validateImages(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	allowed := make(map[string]struct{}, len(s.cfg.Review.ImageHosts))
	for _, h := range s.cfg.Review.ImageHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}

	images := make([]string, 0, len(raw))
	for _, img := range raw {
		u, err := url.Parse(img)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, reviewdomain.ErrInvalidImageURL
		}
		if _, ok := allowed[strings.ToLower(u.Hostname())]; !ok {
			return nil, reviewdomain.ErrInvalidImageURL
		}
		images = append(images, img)
	}
	return images, nil
}

func verdictMap(v moderation.Verdict) datatypes.JSONMap {
	flags := make([]any, 0, len(v.Flags))
	for _, f := range v.Flags {
		flags = append(flags, f)
	}
	m := datatypes.JSONMap{
		"model": v.Model,
		"score": v.Score,
		"flags": flags,
	}
	if v.Category != "" {
		m["category"] = v.Category
	}
	return m
}

// sanitizeAuthorName strips everything outside letters, digits, spaces
// and a few name punctuation marks, collapses whitespace, and truncates.
func sanitizeAuthorName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'' || r == '.':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	out := strings.TrimSpace(b.String())
	if runes := []rune(out); len(runes) > maxAuthorNameLen {
		out = strings.TrimSpace(string(runes[:maxAuthorNameLen]))
	}
	return out
}

// maskDisplayName reduces a full name to its first name plus initial,
// the form shown when the author does not opt into their full name.
func maskDisplayName(name string) string {
	first, _, _ := strings.Cut(name, " ")
	if first == "" {
		return ""
	}
	initial := strings.ToUpper(string([]rune(first)[0]))
	return first + " " + initial + "."
}
