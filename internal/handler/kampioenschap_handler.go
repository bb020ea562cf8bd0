package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nhb-competitie-api/internal/dto"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
	"github.com/noah-isme/nhb-competitie-api/pkg/response"
)

type kampioenschapService interface {
	Cut(ctx context.Context, kampioenschapID int64, req dto.CutRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	SignOn(ctx context.Context, entrantID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	SignOff(ctx context.Context, entrantID int64, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	MoveClass(ctx context.Context, entrantID int64, req dto.MoveClassRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
}

// KampioenschapHandler exposes the roster endpoints of the RK and BK organisers.
type KampioenschapHandler struct {
	service kampioenschapService
}

// NewKampioenschapHandler constructs the handler.
func NewKampioenschapHandler(service kampioenschapService) *KampioenschapHandler {
	return &KampioenschapHandler{service: service}
}

// Cut godoc
// @Summary Change the limit of a class
// @Tags Kampioenschappen
// @Accept json
// @Produce json
// @Param id path int true "Kampioenschap ID"
// @Param payload body dto.CutRequest true "Old and new limit"
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /api/v1/kampioenschappen/{id}/cut [post]
func (h *KampioenschapHandler) Cut(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid cut payload"))
		return
	}
	resp, err := h.service.Cut(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// SignOn godoc
// @Summary Confirm participation of an entrant
// @Tags Kampioenschappen
// @Produce json
// @Param id path int true "Entrant ID"
// @Success 202 {object} response.Envelope
// @Router /api/v1/kampioenschappen/entrants/{id}/sign-on [post]
func (h *KampioenschapHandler) SignOn(c *gin.Context) {
	h.entrant(c, h.service.SignOn)
}

// SignOff godoc
// @Summary Withdraw an entrant
// @Tags Kampioenschappen
// @Produce json
// @Param id path int true "Entrant ID"
// @Success 202 {object} response.Envelope
// @Router /api/v1/kampioenschappen/entrants/{id}/sign-off [post]
func (h *KampioenschapHandler) SignOff(c *gin.Context) {
	h.entrant(c, h.service.SignOff)
}

func (h *KampioenschapHandler) entrant(c *gin.Context, enqueue func(context.Context, int64, dto.SnelRequest, *models.JWTClaims) (*dto.EnqueueResponse, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SnelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	resp, err := enqueue(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// MoveClass godoc
// @Summary Move an entrant to another class
// @Tags Kampioenschappen
// @Accept json
// @Produce json
// @Param id path int true "Entrant ID"
// @Param payload body dto.MoveClassRequest true "Target class"
// @Success 202 {object} response.Envelope
// @Router /api/v1/kampioenschappen/entrants/{id}/move [post]
func (h *KampioenschapHandler) MoveClass(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.MoveClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid move payload"))
		return
	}
	resp, err := h.service.MoveClass(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}
