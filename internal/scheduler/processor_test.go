package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// fakeProcessorStore holds one schedule and one campaign, enough for the
// processor's validation and transition paths.
type fakeProcessorStore struct {
	schedule store.Schedule
	campaign store.Campaign
}

func (f *fakeProcessorStore) CreateSchedule(ctx context.Context, params store.CreateScheduleParams) (store.Schedule, error) {
	f.schedule = store.Schedule{
		ID:               uuid.New(),
		UserID:           params.UserID,
		Kind:             params.Kind,
		CampaignID:       params.CampaignID,
		Maturation:       params.Maturation,
		ScheduledStartAt: params.ScheduledStartAt,
		Status:           store.ScheduleStatusScheduled,
	}
	return f.schedule, nil
}

func (f *fakeProcessorStore) GetScheduleByID(ctx context.Context, scheduleID uuid.UUID) (store.Schedule, error) {
	if f.schedule.ID != scheduleID {
		return store.Schedule{}, store.ErrNotFound
	}
	return f.schedule, nil
}

func (f *fakeProcessorStore) ListSchedulesByUser(ctx context.Context, userID uuid.UUID) ([]store.Schedule, error) {
	if f.schedule.UserID != userID {
		return nil, nil
	}
	return []store.Schedule{f.schedule}, nil
}

func (f *fakeProcessorStore) UpdateScheduleStatusFrom(ctx context.Context, scheduleID uuid.UUID, status string, from ...string) (store.Schedule, error) {
	if f.schedule.ID != scheduleID {
		return store.Schedule{}, store.ErrNotFound
	}
	for _, s := range from {
		if f.schedule.Status == s {
			f.schedule.Status = status
			return f.schedule, nil
		}
	}
	return store.Schedule{}, store.ErrNotFound
}

func (f *fakeProcessorStore) GetCampaignForUser(ctx context.Context, campaignID, userID uuid.UUID) (store.Campaign, error) {
	if f.campaign.ID != campaignID || f.campaign.UserID != userID {
		return store.Campaign{}, store.ErrNotFound
	}
	return f.campaign, nil
}

func maturationConfig() *store.MaturationConfig {
	return &store.MaturationConfig{
		InstanceIDs:  []uuid.UUID{uuid.New(), uuid.New()},
		MessageCount: 10,
		MinDelayMs:   500,
		MaxDelayMs:   2000,
	}
}

func TestScheduleCreate_CampaignKind(t *testing.T) {
	userID := uuid.New()
	fakeStore := &fakeProcessorStore{
		campaign: store.Campaign{ID: uuid.New(), UserID: userID, Status: store.CampaignStatusDraft},
	}
	p := NewProcessor(fakeStore, control.NewMemorySignal(), observability.NewLogger())

	schedule, err := p.Create(context.Background(), userID, CreateScheduleParams{
		Kind:             store.ScheduleKindCampaign,
		CampaignID:       &fakeStore.campaign.ID,
		ScheduledStartAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Status != store.ScheduleStatusScheduled {
		t.Errorf("expected agendado, got %s", schedule.Status)
	}
}

func TestScheduleCreate_Validation(t *testing.T) {
	userID := uuid.New()
	campaignID := uuid.New()
	foreignCampaignID := uuid.New()
	future := time.Now().Add(time.Hour)

	badDelays := maturationConfig()
	badDelays.MinDelayMs = 3000

	singleInstance := maturationConfig()
	singleInstance.InstanceIDs = singleInstance.InstanceIDs[:1]

	zeroMessages := maturationConfig()
	zeroMessages.MessageCount = 0

	cases := []struct {
		name   string
		params CreateScheduleParams
	}{
		{"past start", CreateScheduleParams{Kind: store.ScheduleKindCampaign, CampaignID: &campaignID, ScheduledStartAt: time.Now().Add(-time.Minute)}},
		{"campaign kind without campaign", CreateScheduleParams{Kind: store.ScheduleKindCampaign, ScheduledStartAt: future}},
		{"campaign not owned", CreateScheduleParams{Kind: store.ScheduleKindCampaign, CampaignID: &foreignCampaignID, ScheduledStartAt: future}},
		{"maturation without config", CreateScheduleParams{Kind: store.ScheduleKindMaturation, ScheduledStartAt: future}},
		{"maturation single instance", CreateScheduleParams{Kind: store.ScheduleKindMaturation, Maturation: singleInstance, ScheduledStartAt: future}},
		{"maturation zero messages", CreateScheduleParams{Kind: store.ScheduleKindMaturation, Maturation: zeroMessages, ScheduledStartAt: future}},
		{"maturation inverted delays", CreateScheduleParams{Kind: store.ScheduleKindMaturation, Maturation: badDelays, ScheduledStartAt: future}},
		{"unknown kind", CreateScheduleParams{Kind: "broadcast", ScheduledStartAt: future}},
	}

	fakeStore := &fakeProcessorStore{
		campaign: store.Campaign{ID: campaignID, UserID: userID, Status: store.CampaignStatusDraft},
	}
	p := NewProcessor(fakeStore, control.NewMemorySignal(), observability.NewLogger())

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.Create(context.Background(), userID, tc.params); !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("expected ErrInvalidSchedule, got %v", err)
			}
		})
	}
}

func TestScheduleCreate_RejectsCompletedCampaign(t *testing.T) {
	userID := uuid.New()
	fakeStore := &fakeProcessorStore{
		campaign: store.Campaign{ID: uuid.New(), UserID: userID, Status: store.CampaignStatusCompleted},
	}
	p := NewProcessor(fakeStore, control.NewMemorySignal(), observability.NewLogger())

	_, err := p.Create(context.Background(), userID, CreateScheduleParams{
		Kind:             store.ScheduleKindCampaign,
		CampaignID:       &fakeStore.campaign.ID,
		ScheduledStartAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for a completed campaign, got %v", err)
	}
}

func scheduleFixture(status string) (*fakeProcessorStore, ScheduleProcessor, *control.MemorySignal, uuid.UUID) {
	userID := uuid.New()
	campaignID := uuid.New()
	fakeStore := &fakeProcessorStore{
		schedule: store.Schedule{
			ID:               uuid.New(),
			UserID:           userID,
			Kind:             store.ScheduleKindCampaign,
			CampaignID:       &campaignID,
			ScheduledStartAt: time.Now().Add(time.Hour),
			Status:           status,
		},
	}
	signal := control.NewMemorySignal()
	return fakeStore, NewProcessor(fakeStore, signal, observability.NewLogger()), signal, userID
}

func TestSchedulePause_FromScheduled(t *testing.T) {
	fakeStore, p, signal, userID := scheduleFixture(store.ScheduleStatusScheduled)

	schedule, err := p.Pause(context.Background(), userID, fakeStore.schedule.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Status != store.ScheduleStatusPaused {
		t.Errorf("expected pausado, got %s", schedule.Status)
	}
	// Nothing is running yet, so no stop flag is raised.
	set, _ := signal.IsSet(context.Background(), fakeStore.schedule.CampaignID.String())
	if set {
		t.Error("expected no stop flag for a schedule that was not running")
	}
}

func TestSchedulePause_RunningRaisesStopFlag(t *testing.T) {
	fakeStore, p, signal, userID := scheduleFixture(store.ScheduleStatusRunning)

	schedule, err := p.Pause(context.Background(), userID, fakeStore.schedule.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Status != store.ScheduleStatusPaused {
		t.Errorf("expected pausado, got %s", schedule.Status)
	}
	set, _ := signal.IsSet(context.Background(), fakeStore.schedule.CampaignID.String())
	if !set {
		t.Error("expected the running campaign's stop flag raised")
	}
}

func TestScheduleResume_OnlyFromPaused(t *testing.T) {
	fakeStore, p, _, userID := scheduleFixture(store.ScheduleStatusPaused)

	schedule, err := p.Resume(context.Background(), userID, fakeStore.schedule.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Status != store.ScheduleStatusScheduled {
		t.Errorf("expected agendado, got %s", schedule.Status)
	}

	for _, status := range []string{store.ScheduleStatusScheduled, store.ScheduleStatusRunning, store.ScheduleStatusCompleted, store.ScheduleStatusCanceled} {
		fakeStore, p, _, userID := scheduleFixture(status)
		_, err := p.Resume(context.Background(), userID, fakeStore.schedule.ID)
		var transitionErr *InvalidScheduleTransitionError
		if !errors.As(err, &transitionErr) {
			t.Errorf("resume from %s: expected InvalidScheduleTransitionError, got %v", status, err)
		}
	}
}

func TestScheduleCancel_TerminalStatesRejected(t *testing.T) {
	for _, status := range []string{store.ScheduleStatusCompleted, store.ScheduleStatusCanceled} {
		fakeStore, p, _, userID := scheduleFixture(status)
		_, err := p.Cancel(context.Background(), userID, fakeStore.schedule.ID)
		var transitionErr *InvalidScheduleTransitionError
		if !errors.As(err, &transitionErr) {
			t.Errorf("cancel from %s: expected InvalidScheduleTransitionError, got %v", status, err)
		}
	}

	fakeStore, p, _, userID := scheduleFixture(store.ScheduleStatusPaused)
	schedule, err := p.Cancel(context.Background(), userID, fakeStore.schedule.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if schedule.Status != store.ScheduleStatusCanceled {
		t.Errorf("expected cancelado, got %s", schedule.Status)
	}
}

func TestSchedule_ForeignUserHidden(t *testing.T) {
	fakeStore, p, _, _ := scheduleFixture(store.ScheduleStatusScheduled)

	_, err := p.Pause(context.Background(), uuid.New(), fakeStore.schedule.ID)
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}
