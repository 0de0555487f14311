package handler

import (
	"context"
	"net/http"

	"dispatch-server/internal/apierrors"
	"dispatch-server/internal/auth"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InstanceStore defines the database operations required by Handler
type InstanceStore interface {
	ListInstancesByUser(ctx context.Context, userID uuid.UUID) ([]store.GatewayInstance, error)
}

// Handler serves the read-only gateway instance roster.
type Handler struct {
	store  InstanceStore
	logger *observability.Logger
}

func New(instanceStore InstanceStore, logger *observability.Logger) Handler {
	return Handler{
		store:  instanceStore,
		logger: logger,
	}
}

// HandleListInstances lists the user's gateway instances with their
// connectivity status.
func (h Handler) HandleListInstances(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := auth.GetUserID(c)
	if err != nil {
		h.logger.Error(ctx, "failed to resolve user from context", err)
		apierrors.InternalError(c, err)
		return
	}

	instances, err := h.store.ListInstancesByUser(ctx, userID)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "instances": instances})
}
