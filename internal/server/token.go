package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tokendomain "github.com/revaly/revaly/internal/token/domain"
)

type issueTokenRequest struct {
	StoreUID   string   `json:"store_uid"`
	OrderID    string   `json:"order_id"`
	ProductID  string   `json:"product_id"`
	ProductIDs []string `json:"product_ids"`
	Platform   string   `json:"platform"`
	Customer   struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		Mobile string `json:"mobile"`
	} `json:"customer"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// IssueToken is the order-fulfillment trigger. One call creates the
// single-use token, its invite, and the delivery job.
func (s *Server) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	token, err := s.tokenSvc.Issue(c.Request.Context(), tokendomain.IssueRequest{
		StoreUID:   strings.TrimSpace(req.StoreUID),
		OrderID:    strings.TrimSpace(req.OrderID),
		ProductID:  strings.TrimSpace(req.ProductID),
		ProductIDs: req.ProductIDs,
		Platform:   strings.TrimSpace(req.Platform),
		Customer: tokendomain.Customer{
			Name:   strings.TrimSpace(req.Customer.Name),
			Email:  strings.TrimSpace(req.Customer.Email),
			Mobile: strings.TrimSpace(req.Customer.Mobile),
		},
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": token})
}

func (s *Server) VoidToken(c *gin.Context) {
	tokenID := c.Param("id")
	if tokenID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.tokenSvc.Void(c.Request.Context(), tokenID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": tokenID, "voided": true}})
}
