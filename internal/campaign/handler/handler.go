package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dispatch-server/internal/apierrors"
	"dispatch-server/internal/auth"
	"dispatch-server/internal/campaign/processor"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.CampaignProcessor
	logger    *observability.Logger
}

func New(campaignProcessor processor.CampaignProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: campaignProcessor,
		logger:    logger,
	}
}

// CreateCampaignRequest represents the campaign creation payload
type CreateCampaignRequest struct {
	Name                     string     `json:"name" binding:"required,min=1"`
	MessageTemplate          string     `json:"message_template" binding:"required,min=1"`
	Tags                     []string   `json:"tags,omitempty"`
	Location                 *string    `json:"location,omitempty"`
	LotSize                  int        `json:"lot_size" binding:"gte=0"`
	InterMessageDelaySeconds int        `json:"inter_message_delay_seconds" binding:"gte=0"`
	UseVariation             bool       `json:"use_variation"`
	VariationCount           int        `json:"variation_count" binding:"gte=0"`
	ScheduledAt              *time.Time `json:"scheduled_at,omitempty"`
}

// HandleCreateCampaign creates a campaign
func (h Handler) HandleCreateCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "invalid_request", err.Error())
		return
	}

	campaign, err := h.processor.Create(ctx, userID, processor.CreateCampaignParams{
		Name:            req.Name,
		MessageTemplate: req.MessageTemplate,
		Criteria: store.TargetCriteria{
			Tags:     req.Tags,
			Location: req.Location,
		},
		LotSize:                  req.LotSize,
		InterMessageDelaySeconds: req.InterMessageDelaySeconds,
		UseVariation:             req.UseVariation,
		VariationCount:           req.VariationCount,
		ScheduledAt:              req.ScheduledAt,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "campaign": campaign})
}

// HandleListCampaigns lists the user's campaigns
func (h Handler) HandleListCampaigns(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	campaigns, err := h.processor.List(ctx, userID, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "campaigns": campaigns})
}

// HandleGetCampaign retrieves one campaign
func (h Handler) HandleGetCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	campaign, err := h.processor.Get(ctx, userID, campaignID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "campaign": campaign})
}

// HandleDeleteCampaign deletes a campaign that is not processing
func (h Handler) HandleDeleteCampaign(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	if err := h.processor.Delete(ctx, userID, campaignID); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleStartCampaign starts or resumes dispatching
func (h Handler) HandleStartCampaign(c *gin.Context) {
	h.applyAction(c, h.processor.Start)
}

// HandlePauseCampaign pauses a processing campaign
func (h Handler) HandlePauseCampaign(c *gin.Context) {
	h.applyAction(c, h.processor.Pause)
}

// HandleResumeCampaign resumes a paused campaign
func (h Handler) HandleResumeCampaign(c *gin.Context) {
	h.applyAction(c, h.processor.Resume)
}

// HandleCancelCampaign cancels a non-processing campaign
func (h Handler) HandleCancelCampaign(c *gin.Context) {
	h.applyAction(c, h.processor.Cancel)
}

// HandleGetProgress returns the live progress snapshot
func (h Handler) HandleGetProgress(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	entry, err := h.processor.Progress(ctx, userID, campaignID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "progress": entry})
}

// HandleListRecords returns the campaign's dispatch log
func (h Handler) HandleListRecords(c *gin.Context) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.processor.Records(ctx, userID, campaignID, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "records": records})
}

// applyAction runs one state-machine action resolved from the route
func (h Handler) applyAction(c *gin.Context, action func(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error)) {
	ctx := c.Request.Context()

	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	campaignID, ok := h.getCampaignID(c)
	if !ok {
		return
	}

	campaign, err := action(ctx, userID, campaignID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "campaign": campaign})
}

func (h Handler) getUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := auth.GetUserID(c)
	if err != nil {
		h.logger.Error(c.Request.Context(), "failed to resolve user from context", err)
		apierrors.InternalError(c, err)
		return uuid.Nil, false
	}
	return userID, true
}

func (h Handler) getCampaignID(c *gin.Context) (uuid.UUID, bool) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, "invalid_campaign_id", "campaign id must be a UUID")
		return uuid.Nil, false
	}
	return campaignID, true
}

func (h Handler) handleError(c *gin.Context, err error) {
	var transitionErr *processor.InvalidTransitionError
	switch {
	case errors.Is(err, processor.ErrCampaignNotFound):
		apierrors.NotFound(c, "campaign not found")
	case errors.Is(err, progress.ErrNotFound):
		apierrors.NotFound(c, "no progress for this campaign")
	case errors.Is(err, processor.ErrNoRecipientsMatched):
		apierrors.BadRequest(c, "no_recipients", err.Error())
	case errors.Is(err, processor.ErrInvalidConfiguration):
		apierrors.BadRequest(c, "invalid_configuration", err.Error())
	case errors.As(err, &transitionErr):
		apierrors.Conflict(c, "invalid_transition", transitionErr.Error())
	default:
		apierrors.InternalError(c, err)
	}
}
