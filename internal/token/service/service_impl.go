package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/revaly/revaly/internal/clock"
	"github.com/revaly/revaly/internal/config"
	invitedomain "github.com/revaly/revaly/internal/invite/domain"
	outboxdomain "github.com/revaly/revaly/internal/outbox/domain"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	TokenRepo  tokendomain.Repository
	InviteRepo invitedomain.Repository
	OutboxSt   outboxdomain.Store
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	genID      *snowflake.Node
	clock      clock.Clock
	tokenRepo  tokendomain.Repository
	inviteRepo invitedomain.Repository
	outbox     outboxdomain.Store
}

func NewService(p Params) tokendomain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("token.service"),
		cfg:        p.Config,
		genID:      p.GenID,
		clock:      p.Clock,
		tokenRepo:  p.TokenRepo,
		inviteRepo: p.InviteRepo,
		outbox:     p.OutboxSt,
	}
}

// Issue creates the single-use token, its invite record, and one outbox
// job in a single transaction. The job's channels follow from which
// contact details the fulfillment event carried.
func (s *service) Issue(ctx context.Context, req tokendomain.IssueRequest) (*tokendomain.Token, error) {
	if req.StoreUID == "" || req.OrderID == "" {
		return nil, tokendomain.ErrInvalidRequest
	}
	if req.Customer.Email == "" && req.Customer.Mobile == "" {
		return nil, tokendomain.ErrInvalidRequest
	}

	now := s.clock.Now()
	tokenID := uuid.NewString()

	token := &tokendomain.Token{
		ID:         tokenID,
		StoreUID:   req.StoreUID,
		OrderID:    req.OrderID,
		ProductID:  req.ProductID,
		ProductIDs: datatypes.NewJSONSlice(req.ProductIDs),
		Platform:   req.Platform,
		PublicURL:  fmt.Sprintf("%s/r/%s", s.cfg.PublicBaseURL, tokenID),
		CreatedAt:  now,
		ExpiresAt:  req.ExpiresAt,
	}

	invite := &invitedomain.Invite{
		ID:             s.genID.Generate(),
		TokenID:        tokenID,
		OrderID:        req.OrderID,
		StoreUID:       req.StoreUID,
		CustomerName:   req.Customer.Name,
		CustomerEmail:  req.Customer.Email,
		CustomerMobile: req.Customer.Mobile,
		SentChannels:   datatypes.JSONMap{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	job := s.buildJob(invite, token, now)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tokenRepo.Insert(ctx, tx, token); err != nil {
			return fmt.Errorf("insert token: %w", err)
		}
		if err := s.inviteRepo.Insert(ctx, tx, invite); err != nil {
			return fmt.Errorf("insert invite: %w", err)
		}
		if err := s.outbox.Insert(ctx, tx, job); err != nil {
			return fmt.Errorf("insert outbox job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("review invite issued",
		zap.String("token_id", tokenID),
		zap.String("store_uid", req.StoreUID),
		zap.String("order_id", req.OrderID),
		zap.Strings("channels", []string(job.Channels)),
	)
	return token, nil
}

func (s *service) Void(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return tokendomain.ErrInvalidRequest
	}
	voided, err := s.tokenRepo.Void(ctx, s.db, tokenID, s.clock.Now())
	if err != nil {
		return err
	}
	if !voided {
		// Either unknown or already voided; distinguish for the caller.
		if _, err := s.tokenRepo.FindByID(ctx, s.db, tokenID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) buildJob(invite *invitedomain.Invite, token *tokendomain.Token, now time.Time) *outboxdomain.Job {
	var channels []string
	payload := datatypes.JSONMap{}

	firstName := firstNameOf(invite.CustomerName)
	if invite.CustomerMobile != "" {
		channels = append(channels, outboxdomain.ChannelSMS)
		payload[outboxdomain.PayloadPhone] = invite.CustomerMobile
		payload[outboxdomain.PayloadSMSText] = smsText(firstName, token.PublicURL)
	}
	if invite.CustomerEmail != "" {
		channels = append(channels, outboxdomain.ChannelEmail)
		payload[outboxdomain.PayloadEmailTo] = invite.CustomerEmail
		payload[outboxdomain.PayloadEmailSubject] = "How was your order?"
		payload[outboxdomain.PayloadEmailHTML] = emailHTML(firstName, token.PublicURL)
	}

	return &outboxdomain.Job{
		ID:            s.genID.Generate(),
		InviteID:      invite.ID,
		StoreUID:      invite.StoreUID,
		Channels:      datatypes.NewJSONSlice(channels),
		Payload:       payload,
		Status:        outboxdomain.JobStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func smsText(firstName, publicURL string) string {
	greeting := "Hi"
	if firstName != "" {
		greeting = "Hi " + firstName
	}
	return fmt.Sprintf("%s! Thanks for your order. Tell us how it went: %s", greeting, publicURL)
}

func emailHTML(firstName, publicURL string) string {
	greeting := "Hi"
	if firstName != "" {
		greeting = "Hi " + firstName
	}
	return fmt.Sprintf(
		`<p>%s,</p><p>Thanks for your recent order. We'd love to hear what you think.</p><p><a href="%s">Leave a review</a></p>`,
		greeting, publicURL)
}

func firstNameOf(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
