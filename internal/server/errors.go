package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return tokendomain.ErrInvalidRequest
}

// mapError surfaces domain sentinels under their own code so the
// submission UI can branch on the `type` field.
func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, tokendomain.ErrInvalidRequest),
		errors.Is(err, reviewdomain.ErrInvalidStars),
		errors.Is(err, reviewdomain.ErrInvalidImageURL):
		return http.StatusBadRequest, errorPayload{
			Type:    err.Error(),
			Message: "validation error",
		}
	case errors.Is(err, tokendomain.ErrTokenNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    tokendomain.ErrTokenNotFound.Error(),
			Message: "token not found",
		}
	case errors.Is(err, reviewdomain.ErrReviewNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, tokendomain.ErrTokenAlreadyUsed),
		errors.Is(err, tokendomain.ErrTokenExpired),
		errors.Is(err, tokendomain.ErrTokenVoided),
		errors.Is(err, tokendomain.ErrTokenOrderMismatch),
		errors.Is(err, reviewdomain.ErrDuplicateReview):
		return http.StatusConflict, errorPayload{
			Type:    err.Error(),
			Message: "conflict",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
