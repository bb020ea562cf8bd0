package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/nhb-competitie-api/internal/models"
	"github.com/noah-isme/nhb-competitie-api/internal/service"
	appErrors "github.com/noah-isme/nhb-competitie-api/pkg/errors"
)

type statusServiceMock struct {
	queue string
	id    int64
}

func (m *statusServiceMock) Status(ctx context.Context, queue string, id int64) (*models.MutationStatus, error) {
	m.queue, m.id = queue, id
	if id == 404 {
		return nil, appErrors.Clone(appErrors.ErrMutationNotFound, "")
	}
	return &models.MutationStatus{ID: id, Code: "PLACE_ORDERS", Processed: true}, nil
}

func TestMutationHandlerCartStatus(t *testing.T) {
	svc := &statusServiceMock{}
	c, w := newTestContext(http.MethodGet, "/api/v1/mutations/cart/9", nil, sporter)
	c.Params = gin.Params{{Key: "id", Value: "9"}}

	NewMutationHandler(svc).CartStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.QueueCart, svc.queue)
	var envelope struct {
		Data models.MutationStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Processed)
}

func TestMutationHandlerCompetitionStatusNotFound(t *testing.T) {
	svc := &statusServiceMock{}
	c, w := newTestContext(http.MethodGet, "/api/v1/mutations/competition/404", nil, bko)
	c.Params = gin.Params{{Key: "id", Value: "404"}}

	NewMutationHandler(svc).CompetitionStatus(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.QueueCompetition, svc.queue)
}
