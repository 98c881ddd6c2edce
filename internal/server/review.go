package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reviewdomain "github.com/revaly/revaly/internal/review/domain"
)

type submitReviewRequest struct {
	TokenID        string   `json:"token_id"`
	OrderID        string   `json:"order_id"`
	ProductID      string   `json:"product_id"`
	Stars          int      `json:"stars"`
	Text           string   `json:"text"`
	Images         []string `json:"images"`
	AuthorName     string   `json:"author_name"`
	AuthorShowName bool     `json:"author_show_name"`
}

func (s *Server) SubmitReview(c *gin.Context) {
	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reviewSvc.Submit(c.Request.Context(), reviewdomain.SubmitRequest{
		TokenID:        strings.TrimSpace(req.TokenID),
		OrderID:        strings.TrimSpace(req.OrderID),
		ProductID:      strings.TrimSpace(req.ProductID),
		Stars:          req.Stars,
		Text:           req.Text,
		Images:         req.Images,
		AuthorName:     req.AuthorName,
		AuthorShowName: req.AuthorShowName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
