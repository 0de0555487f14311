package scheduler

//go:generate go run go.uber.org/mock/mockgen@latest -source=manager.go -destination=mocks_test.go -package=scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// ManagerStore defines the database operations required by Manager
type ManagerStore interface {
	GetDueSchedules(ctx context.Context, beforeTime time.Time) ([]store.Schedule, error)
	UpdateScheduleStatusFrom(ctx context.Context, scheduleID uuid.UUID, status string, from ...string) (store.Schedule, error)
	GetDueCampaigns(ctx context.Context, beforeTime time.Time) ([]store.Campaign, error)
}

// CampaignStarter starts a campaign on behalf of its owner
type CampaignStarter interface {
	Start(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error)
}

// MaturationRunner launches an instance warm-up run in the background
type MaturationRunner interface {
	Launch(schedule store.Schedule)
}

// Manager periodically promotes due schedules and due campaigns into
// execution.
type Manager struct {
	store         ManagerStore
	campaigns     CampaignStarter
	maturation    MaturationRunner
	logger        *observability.Logger
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewManager creates a schedule manager. maturation may be nil when warm-up
// runs are not configured.
func NewManager(
	managerStore ManagerStore,
	campaigns CampaignStarter,
	maturation MaturationRunner,
	logger *observability.Logger,
	checkInterval time.Duration,
) *Manager {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}

	return &Manager{
		store:         managerStore,
		campaigns:     campaigns,
		maturation:    maturation,
		logger:        logger,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the scan loop
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info(ctx, fmt.Sprintf("starting schedule manager with %v interval", m.checkInterval))

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	// Run immediately on start
	m.checkDue(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "schedule manager stopping: context cancelled")
			return
		case <-m.stopChan:
			m.logger.Info(ctx, "schedule manager stopping: stop signal received")
			return
		case <-ticker.C:
			m.checkDue(ctx)
		}
	}
}

// Stop signals the manager to stop
func (m *Manager) Stop() {
	close(m.stopChan)
}

// checkDue promotes every due schedule and every due scheduled campaign.
func (m *Manager) checkDue(ctx context.Context) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "operation", Value: "check_due_schedules"},
	)

	m.promoteSchedules(ctx)
	m.promoteCampaigns(ctx)
}

func (m *Manager) promoteSchedules(ctx context.Context) {
	schedules, err := m.store.GetDueSchedules(ctx, time.Now())
	if err != nil {
		m.logger.Error(ctx, "failed to get due schedules", err)
		return
	}
	if len(schedules) == 0 {
		return
	}

	m.logger.Info(ctx, fmt.Sprintf("found %d due schedules", len(schedules)))

	for _, schedule := range schedules {
		scheduleCtx := observability.WithFields(ctx,
			observability.Field{Key: "schedule_id", Value: schedule.ID},
			observability.Field{Key: "schedule_kind", Value: schedule.Kind},
		)

		// The conditional update is the promotion claim: a schedule paused
		// or canceled since the scan simply fails it.
		if _, err := m.store.UpdateScheduleStatusFrom(scheduleCtx, schedule.ID, store.ScheduleStatusRunning, store.ScheduleStatusScheduled); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				m.logger.Error(scheduleCtx, "failed to promote schedule", err)
			}
			continue
		}

		switch schedule.Kind {
		case store.ScheduleKindCampaign:
			m.startScheduledCampaign(scheduleCtx, schedule)
		case store.ScheduleKindMaturation:
			if m.maturation == nil {
				m.logger.Warn(scheduleCtx, "maturation runs are not configured, canceling schedule")
				m.failSchedule(scheduleCtx, schedule.ID)
				continue
			}
			m.maturation.Launch(schedule)
			m.logger.Info(scheduleCtx, "maturation run launched")
		default:
			m.logger.Warn(scheduleCtx, fmt.Sprintf("unknown schedule kind %q, canceling", schedule.Kind))
			m.failSchedule(scheduleCtx, schedule.ID)
		}
	}
}

func (m *Manager) startScheduledCampaign(ctx context.Context, schedule store.Schedule) {
	if schedule.CampaignID == nil {
		m.logger.Warn(ctx, "campaign schedule has no campaign id, canceling")
		m.failSchedule(ctx, schedule.ID)
		return
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "campaign_id", Value: *schedule.CampaignID},
	)

	if _, err := m.campaigns.Start(ctx, schedule.UserID, *schedule.CampaignID); err != nil {
		m.logger.Error(ctx, "failed to start scheduled campaign", err)
		m.failSchedule(ctx, schedule.ID)
		return
	}
	m.logger.Info(ctx, "scheduled campaign started")
}

// promoteCampaigns starts due campaigns that carry their own schedule time,
// including campaigns parked by the dispatch engine waiting for an instance
// to reconnect.
func (m *Manager) promoteCampaigns(ctx context.Context) {
	campaigns, err := m.store.GetDueCampaigns(ctx, time.Now())
	if err != nil {
		m.logger.Error(ctx, "failed to get due campaigns", err)
		return
	}

	for _, campaign := range campaigns {
		campaignCtx := observability.WithFields(ctx,
			observability.Field{Key: "campaign_id", Value: campaign.ID},
		)
		if _, err := m.campaigns.Start(campaignCtx, campaign.UserID, campaign.ID); err != nil {
			m.logger.Error(campaignCtx, "failed to start due campaign", err)
			continue
		}
		m.logger.Info(campaignCtx, "due campaign started")
	}
}

// failSchedule terminally cancels a schedule that could not be executed.
func (m *Manager) failSchedule(ctx context.Context, scheduleID uuid.UUID) {
	if _, err := m.store.UpdateScheduleStatusFrom(ctx, scheduleID, store.ScheduleStatusCanceled, store.ScheduleStatusRunning); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Error(ctx, "failed to cancel schedule", err)
	}
}
