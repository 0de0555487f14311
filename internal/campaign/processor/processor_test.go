package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// fakeCampaignStore backs processor tests with in-memory state. The claim
// flag mirrors the conditional update the real store runs, so the duplicate
// start race is exercised for real.
type fakeCampaignStore struct {
	mu         sync.Mutex
	campaign   store.Campaign
	recipients []string
	resolveErr error

	claimed         bool
	createLotsCalls int
	deleted         bool
}

func (f *fakeCampaignStore) CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := store.CampaignStatusDraft
	if params.ScheduledAt != nil {
		status = store.CampaignStatusScheduled
	}
	f.campaign = store.Campaign{
		ID:                       uuid.New(),
		UserID:                   params.UserID,
		Name:                     params.Name,
		MessageTemplate:          params.MessageTemplate,
		Criteria:                 params.Criteria,
		LotSize:                  params.LotSize,
		InterMessageDelaySeconds: params.InterMessageDelaySeconds,
		UseVariation:             params.UseVariation,
		VariationCount:           params.VariationCount,
		Status:                   status,
		ScheduledAt:              params.ScheduledAt,
	}
	return f.campaign, nil
}

func (f *fakeCampaignStore) GetCampaignForUser(ctx context.Context, campaignID, userID uuid.UUID) (store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign.ID != campaignID || f.campaign.UserID != userID || f.deleted {
		return store.Campaign{}, store.ErrNotFound
	}
	return f.campaign, nil
}

func (f *fakeCampaignStore) ListCampaignsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign.UserID != userID || f.deleted {
		return nil, nil
	}
	return []store.Campaign{f.campaign}, nil
}

func (f *fakeCampaignStore) DeleteCampaign(ctx context.Context, campaignID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.campaign.ID != campaignID || f.campaign.UserID != userID {
		return store.ErrNotFound
	}
	f.deleted = true
	return nil
}

func (f *fakeCampaignStore) UpdateCampaignStatusFrom(ctx context.Context, campaignID uuid.UUID, status string, from ...string) (store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range from {
		if f.campaign.Status == s {
			f.campaign.Status = status
			return f.campaign, nil
		}
	}
	return store.Campaign{}, store.ErrNotFound
}

func (f *fakeCampaignStore) UpdateCampaignScheduledAt(ctx context.Context, campaignID uuid.UUID, scheduledAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaign.ScheduledAt = scheduledAt
	return nil
}

func (f *fakeCampaignStore) ClaimLotMaterialization(ctx context.Context, campaignID uuid.UUID, totalLots int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimed {
		return false, nil
	}
	f.claimed = true
	f.campaign.TotalLots = totalLots
	return true, nil
}

func (f *fakeCampaignStore) CreateLots(ctx context.Context, params []store.CreateLotParams) ([]store.Lot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createLotsCalls++
	lots := make([]store.Lot, len(params))
	for i, p := range params {
		lots[i] = store.Lot{
			ID:            uuid.New(),
			CampaignID:    p.CampaignID,
			SequenceIndex: p.SequenceIndex,
			Recipients:    p.Recipients,
			Status:        store.LotStatusPending,
		}
	}
	return lots, nil
}

func (f *fakeCampaignStore) ResolveRecipients(ctx context.Context, userID uuid.UUID, criteria store.TargetCriteria) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.recipients, nil
}

func (f *fakeCampaignStore) ListDispatchRecordsByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]store.DispatchRecord, error) {
	return nil, nil
}

// fakeDispatcher counts Launch calls.
type fakeDispatcher struct {
	mu       sync.Mutex
	launches []uuid.UUID
}

func (f *fakeDispatcher) Launch(campaignID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, campaignID)
}

func (f *fakeDispatcher) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launches)
}

type processorFixture struct {
	processor  CampaignProcessor
	store      *fakeCampaignStore
	dispatcher *fakeDispatcher
	signal     *control.MemorySignal
	userID     uuid.UUID
}

func newProcessorFixture(status string, recipients []string) *processorFixture {
	userID := uuid.New()
	fakeStore := &fakeCampaignStore{
		campaign: store.Campaign{
			ID:              uuid.New(),
			UserID:          userID,
			Name:            "promo",
			MessageTemplate: "hello",
			LotSize:         3,
			Status:          status,
		},
		recipients: recipients,
	}
	dispatcher := &fakeDispatcher{}
	signal := control.NewMemorySignal()
	p := New(fakeStore, dispatcher, signal, progress.NewMemoryStore(), 50, observability.NewLogger())
	return &processorFixture{
		processor:  p,
		store:      fakeStore,
		dispatcher: dispatcher,
		signal:     signal,
		userID:     userID,
	}
}

func TestCreate_Validation(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name   string
		params CreateCampaignParams
	}{
		{"missing name", CreateCampaignParams{MessageTemplate: "hi"}},
		{"missing template", CreateCampaignParams{Name: "promo"}},
		{"negative lot size", CreateCampaignParams{Name: "promo", MessageTemplate: "hi", LotSize: -1}},
		{"negative delay", CreateCampaignParams{Name: "promo", MessageTemplate: "hi", InterMessageDelaySeconds: -5}},
		{"variation without count", CreateCampaignParams{Name: "promo", MessageTemplate: "hi", UseVariation: true}},
		{"past schedule", CreateCampaignParams{Name: "promo", MessageTemplate: "hi", ScheduledAt: &past}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fix.processor.Create(ctx, fix.userID, tc.params); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestCreate_AppliesDefaultLotSize(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)

	campaign, err := fix.processor.Create(context.Background(), fix.userID, CreateCampaignParams{
		Name:            "promo",
		MessageTemplate: "hi",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.LotSize != 50 {
		t.Errorf("expected default lot size 50, got %d", campaign.LotSize)
	}
	if campaign.Status != store.CampaignStatusDraft {
		t.Errorf("expected draft, got %s", campaign.Status)
	}
}

func TestCreate_WithScheduleStartsScheduled(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)
	future := time.Now().Add(time.Hour)

	campaign, err := fix.processor.Create(context.Background(), fix.userID, CreateCampaignParams{
		Name:            "promo",
		MessageTemplate: "hi",
		ScheduledAt:     &future,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusScheduled {
		t.Errorf("expected scheduled, got %s", campaign.Status)
	}
}

func TestStart_MaterializesLotsAndLaunches(t *testing.T) {
	recipients := []string{"+111", "+222", "+333", "+444", "+555", "+666", "+777"}
	fix := newProcessorFixture(store.CampaignStatusDraft, recipients)
	ctx := context.Background()

	campaign, err := fix.processor.Start(ctx, fix.userID, fix.store.campaign.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusProcessing {
		t.Errorf("expected processing, got %s", campaign.Status)
	}
	if campaign.TotalLots != 3 {
		t.Errorf("expected 3 lots for 7 recipients at size 3, got %d", campaign.TotalLots)
	}
	if fix.store.createLotsCalls != 1 {
		t.Errorf("expected lots created once, got %d", fix.store.createLotsCalls)
	}
	if fix.dispatcher.launchCount() != 1 {
		t.Errorf("expected 1 launch, got %d", fix.dispatcher.launchCount())
	}
}

func TestStart_ClearsStaleControlFlag(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusPaused, []string{"+111"})
	ctx := context.Background()
	campaignID := fix.store.campaign.ID
	fix.store.campaign.TotalLots = 1

	if err := fix.signal.Request(ctx, campaignID.String()); err != nil {
		t.Fatalf("failed to raise flag: %v", err)
	}

	if _, err := fix.processor.Start(ctx, fix.userID, campaignID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, err := fix.signal.IsSet(ctx, campaignID.String())
	if err != nil {
		t.Fatalf("failed to check flag: %v", err)
	}
	if set {
		t.Error("expected the stale flag cleared on start")
	}
}

func TestStart_NoRecipients(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)

	_, err := fix.processor.Start(context.Background(), fix.userID, fix.store.campaign.ID)
	if !errors.Is(err, ErrNoRecipientsMatched) {
		t.Errorf("expected ErrNoRecipientsMatched, got %v", err)
	}
	if fix.dispatcher.launchCount() != 0 {
		t.Errorf("expected no launch, got %d", fix.dispatcher.launchCount())
	}
}

func TestStart_ConcurrentDuplicateMaterializesOnce(t *testing.T) {
	recipients := []string{"+111", "+222", "+333", "+444"}
	fix := newProcessorFixture(store.CampaignStatusDraft, recipients)
	ctx := context.Background()
	campaignID := fix.store.campaign.ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fix.processor.Start(ctx, fix.userID, campaignID)
		}(i)
	}
	wg.Wait()

	// The loser either piggybacks on the winner (nil) or, when it arrives
	// after the winner already flipped the status, is rejected by the state
	// machine. Both are fine; double materialization is not.
	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var transitionErr *InvalidTransitionError
		if !errors.As(err, &transitionErr) {
			t.Errorf("start %d: unexpected error: %v", i, err)
		}
	}
	if succeeded == 0 {
		t.Error("expected at least one start to succeed")
	}
	if fix.store.createLotsCalls != 1 {
		t.Errorf("expected lots created exactly once, got %d", fix.store.createLotsCalls)
	}
	if fix.store.campaign.Status != store.CampaignStatusProcessing {
		t.Errorf("expected processing, got %s", fix.store.campaign.Status)
	}
	if fix.dispatcher.launchCount() == 0 {
		t.Error("expected at least one launch")
	}
}

func TestTransitionLegality(t *testing.T) {
	type action func(p CampaignProcessor, ctx context.Context, userID, campaignID uuid.UUID) error

	start := func(p CampaignProcessor, ctx context.Context, userID, campaignID uuid.UUID) error {
		_, err := p.Start(ctx, userID, campaignID)
		return err
	}
	pause := func(p CampaignProcessor, ctx context.Context, userID, campaignID uuid.UUID) error {
		_, err := p.Pause(ctx, userID, campaignID)
		return err
	}
	resume := func(p CampaignProcessor, ctx context.Context, userID, campaignID uuid.UUID) error {
		_, err := p.Resume(ctx, userID, campaignID)
		return err
	}
	cancel := func(p CampaignProcessor, ctx context.Context, userID, campaignID uuid.UUID) error {
		_, err := p.Cancel(ctx, userID, campaignID)
		return err
	}

	cases := []struct {
		name   string
		status string
		act    action
	}{
		{"start from processing", store.CampaignStatusProcessing, start},
		{"start from completed", store.CampaignStatusCompleted, start},
		{"start from canceled", store.CampaignStatusCanceled, start},
		{"pause from draft", store.CampaignStatusDraft, pause},
		{"pause from scheduled", store.CampaignStatusScheduled, pause},
		{"pause from paused", store.CampaignStatusPaused, pause},
		{"pause from completed", store.CampaignStatusCompleted, pause},
		{"resume from draft", store.CampaignStatusDraft, resume},
		{"resume from processing", store.CampaignStatusProcessing, resume},
		{"resume from completed", store.CampaignStatusCompleted, resume},
		{"cancel from processing", store.CampaignStatusProcessing, cancel},
		{"cancel from completed", store.CampaignStatusCompleted, cancel},
		{"cancel from canceled", store.CampaignStatusCanceled, cancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix := newProcessorFixture(tc.status, []string{"+111"})
			err := tc.act(fix.processor, context.Background(), fix.userID, fix.store.campaign.ID)

			var transitionErr *InvalidTransitionError
			if !errors.As(err, &transitionErr) {
				t.Fatalf("expected InvalidTransitionError, got %v", err)
			}
			if transitionErr.From != tc.status {
				t.Errorf("expected From %s, got %s", tc.status, transitionErr.From)
			}
		})
	}
}

func TestPause_RaisesFlagThenFlipsStatus(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusProcessing, nil)
	ctx := context.Background()
	campaignID := fix.store.campaign.ID

	campaign, err := fix.processor.Pause(ctx, fix.userID, campaignID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusPaused {
		t.Errorf("expected paused, got %s", campaign.Status)
	}
	set, err := fix.signal.IsSet(ctx, campaignID.String())
	if err != nil {
		t.Fatalf("failed to check flag: %v", err)
	}
	if !set {
		t.Error("expected the stop flag raised")
	}
}

func TestResume_FutureScheduleReturnsToScheduled(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusPaused, nil)
	future := time.Now().Add(2 * time.Hour)
	fix.store.campaign.ScheduledAt = &future

	campaign, err := fix.processor.Resume(context.Background(), fix.userID, fix.store.campaign.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusScheduled {
		t.Errorf("expected scheduled, got %s", campaign.Status)
	}
	if fix.dispatcher.launchCount() != 0 {
		t.Errorf("expected no launch for a rescheduled campaign, got %d", fix.dispatcher.launchCount())
	}
}

func TestResume_WithoutScheduleStartsImmediately(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusPaused, []string{"+111"})
	fix.store.campaign.TotalLots = 1

	campaign, err := fix.processor.Resume(context.Background(), fix.userID, fix.store.campaign.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusProcessing {
		t.Errorf("expected processing, got %s", campaign.Status)
	}
	if fix.dispatcher.launchCount() != 1 {
		t.Errorf("expected 1 launch, got %d", fix.dispatcher.launchCount())
	}
	// Lots already exist; none are re-created on resume.
	if fix.store.createLotsCalls != 0 {
		t.Errorf("expected no lot creation on resume, got %d", fix.store.createLotsCalls)
	}
}

func TestCancel_FromPaused(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusPaused, nil)

	campaign, err := fix.processor.Cancel(context.Background(), fix.userID, fix.store.campaign.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.Status != store.CampaignStatusCanceled {
		t.Errorf("expected canceled, got %s", campaign.Status)
	}
}

func TestDelete_RefusedWhileProcessing(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusProcessing, nil)

	err := fix.processor.Delete(context.Background(), fix.userID, fix.store.campaign.ID)
	var transitionErr *InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if fix.store.deleted {
		t.Error("expected the campaign kept")
	}
}

func TestDelete_RemovesCampaign(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)

	if err := fix.processor.Delete(context.Background(), fix.userID, fix.store.campaign.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fix.store.deleted {
		t.Error("expected the campaign deleted")
	}
	if _, err := fix.processor.Get(context.Background(), fix.userID, fix.store.campaign.ID); !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("expected ErrCampaignNotFound after delete, got %v", err)
	}
}

func TestGet_OtherUsersCampaignHidden(t *testing.T) {
	fix := newProcessorFixture(store.CampaignStatusDraft, nil)

	_, err := fix.processor.Get(context.Background(), uuid.New(), fix.store.campaign.ID)
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("expected ErrCampaignNotFound for a foreign user, got %v", err)
	}
}
