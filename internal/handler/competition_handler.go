package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nhb-competitie-api/internal/dto"
	"github.com/noah-isme/nhb-competitie-api/internal/models"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
	"github.com/noah-isme/nhb-competitie-api/pkg/response"
)

type competitionService interface {
	OpenSeason(ctx context.Context, req dto.SnelRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	FixSeedAverages(ctx context.Context, req dto.SeedAveragesRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
	Transition(ctx context.Context, competitionID int64, req dto.TransitionRequest, actor *models.JWTClaims) (*dto.EnqueueResponse, error)
}

// CompetitionHandler exposes the BKO endpoints that move a competition through its season.
type CompetitionHandler struct {
	service competitionService
}

// NewCompetitionHandler constructs the handler.
func NewCompetitionHandler(service competitionService) *CompetitionHandler {
	return &CompetitionHandler{service: service}
}

// OpenSeason godoc
// @Summary Open the next season
// @Tags Competitions
// @Accept json
// @Produce json
// @Param payload body dto.SnelRequest false "Fire and forget"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/competitions/season [post]
func (h *CompetitionHandler) OpenSeason(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SnelRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	resp, err := h.service.OpenSeason(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// FixSeedAverages godoc
// @Summary Recompute the seed averages of one distance
// @Tags Competitions
// @Accept json
// @Produce json
// @Param payload body dto.SeedAveragesRequest true "Distance"
// @Success 202 {object} response.Envelope
// @Router /api/v1/competitions/seed-averages [post]
func (h *CompetitionHandler) FixSeedAverages(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SeedAveragesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid seed averages payload"))
		return
	}
	resp, err := h.service.FixSeedAverages(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// Transition godoc
// @Summary Set a phase flag of a competition
// @Tags Competitions
// @Accept json
// @Produce json
// @Param id path int true "Competition ID"
// @Param payload body dto.TransitionRequest true "Phase flag"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/v1/competitions/{id}/transitions [post]
func (h *CompetitionHandler) Transition(c *gin.Context) {
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
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	resp, err := h.service.Transition(c.Request.Context(), id, req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}
