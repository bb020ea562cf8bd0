package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/service"
	"github.com/noah-isme/nhb-competitie-api/pkg/response"
)

type mutationStatusService interface {
	Status(ctx context.Context, queue string, id int64) (*models.MutationStatus, error)
}

// MutationHandler lets clients poll whether a queued mutation has been processed.
type MutationHandler struct {
	service mutationStatusService
}

// NewMutationHandler constructs the handler.
func NewMutationHandler(service mutationStatusService) *MutationHandler {
	return &MutationHandler{service: service}
}

// CompetitionStatus godoc
// @Summary Poll a competition mutation
// @Tags Mutations
// @Produce json
// @Param id path int true "Mutation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/mutations/competition/{id} [get]
func (h *MutationHandler) CompetitionStatus(c *gin.Context) {
	h.status(c, service.QueueCompetition)
}

// CartStatus godoc
// @Summary Poll a cart mutation
// @Tags Mutations
// @Produce json
// @Param id path int true "Mutation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/v1/mutations/cart/{id} [get]
func (h *MutationHandler) CartStatus(c *gin.Context) {
	h.status(c, service.QueueCart)
}

func (h *MutationHandler) status(c *gin.Context, queue string) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.service.Status(c.Request.Context(), queue, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}
