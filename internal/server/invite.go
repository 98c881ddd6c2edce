package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
	"go.uber.org/zap"
)

// FollowInviteLink is the public landing hop behind every sent message.
// It counts the click on the invite and forwards the customer to the
// review form. Unknown tokens still land on the form so the UI can show
// the proper error.
func (s *Server) FollowInviteLink(c *gin.Context) {
	tokenID := c.Param("token")

	_, err := s.tokenRepo.FindByID(c.Request.Context(), s.db, tokenID)
	if err != nil {
		if errors.Is(err, tokendomain.ErrTokenNotFound) {
			c.Redirect(http.StatusFound, fmt.Sprintf("%s/review/%s", s.cfg.PublicBaseURL, tokenID))
			return
		}
		AbortWithError(c, err)
		return
	}

	if err := s.inviteRepo.RecordClick(c.Request.Context(), s.db, tokenID); err != nil {
		s.log.Warn("recording invite click failed",
			zap.String("token_id", tokenID), zap.Error(err))
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("%s/review/%s", s.cfg.PublicBaseURL, tokenID))
}
