package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nhb-competitie-api/internal/middleware"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// pathID parses a positive numeric path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

// bindOptionalJSON binds the body into req; an empty body keeps the zero value.
func bindOptionalJSON(c *gin.Context, req interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(req); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid payload")
	}
	return nil
}
