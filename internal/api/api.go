package api

import (
	"net/http"

	"dispatch-server/internal/auth"
	campaignHandler "dispatch-server/internal/campaign/handler"
	instanceHandler "dispatch-server/internal/instance/handler"
	scheduleHandler "dispatch-server/internal/scheduler/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router          *gin.RouterGroup
	authMiddleware  *auth.Middleware
	campaignHandler campaignHandler.Handler
	scheduleHandler scheduleHandler.Handler
	instanceHandler instanceHandler.Handler
}

func New(
	router *gin.RouterGroup,
	authMiddleware *auth.Middleware,
	campaignHandler campaignHandler.Handler,
	scheduleHandler scheduleHandler.Handler,
	instanceHandler instanceHandler.Handler,
) API {
	return API{
		router:          router,
		authMiddleware:  authMiddleware,
		campaignHandler: campaignHandler,
		scheduleHandler: scheduleHandler,
		instanceHandler: instanceHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	apiGroup := a.router.Group("/api")
	protectedGroup := apiGroup.Group("/protected", a.authMiddleware.Handle)
	{
		campaigns := protectedGroup.Group("/campaigns")
		campaigns.POST("", a.campaignHandler.HandleCreateCampaign)
		campaigns.GET("", a.campaignHandler.HandleListCampaigns)
		campaigns.GET("/:id", a.campaignHandler.HandleGetCampaign)
		campaigns.DELETE("/:id", a.campaignHandler.HandleDeleteCampaign)
		campaigns.POST("/:id/start", a.campaignHandler.HandleStartCampaign)
		campaigns.POST("/:id/pause", a.campaignHandler.HandlePauseCampaign)
		campaigns.POST("/:id/resume", a.campaignHandler.HandleResumeCampaign)
		campaigns.POST("/:id/cancel", a.campaignHandler.HandleCancelCampaign)
		campaigns.GET("/:id/progress", a.campaignHandler.HandleGetProgress)
		campaigns.GET("/:id/progress/ws", a.campaignHandler.HandleProgressWS)
		campaigns.GET("/:id/records", a.campaignHandler.HandleListRecords)

		schedules := protectedGroup.Group("/schedules")
		schedules.POST("", a.scheduleHandler.HandleCreateSchedule)
		schedules.GET("", a.scheduleHandler.HandleListSchedules)
		schedules.POST("/:id/pause", a.scheduleHandler.HandlePauseSchedule)
		schedules.POST("/:id/resume", a.scheduleHandler.HandleResumeSchedule)
		schedules.POST("/:id/cancel", a.scheduleHandler.HandleCancelSchedule)

		protectedGroup.GET("/instances", a.instanceHandler.HandleListInstances)
	}
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
