package processor

//go:generate go run go.uber.org/mock/mockgen@latest -source=processor.go -destination=mocks_test.go -package=processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/store"

	"github.com/google/uuid"
)

// CampaignStore defines the database operations required by CampaignProcessor
type CampaignStore interface {
	CreateCampaign(ctx context.Context, params store.CreateCampaignParams) (store.Campaign, error)
	GetCampaignForUser(ctx context.Context, campaignID, userID uuid.UUID) (store.Campaign, error)
	ListCampaignsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]store.Campaign, error)
	DeleteCampaign(ctx context.Context, campaignID, userID uuid.UUID) error
	UpdateCampaignStatusFrom(ctx context.Context, campaignID uuid.UUID, status string, from ...string) (store.Campaign, error)
	UpdateCampaignScheduledAt(ctx context.Context, campaignID uuid.UUID, scheduledAt *time.Time) error
	ClaimLotMaterialization(ctx context.Context, campaignID uuid.UUID, totalLots int) (bool, error)
	CreateLots(ctx context.Context, params []store.CreateLotParams) ([]store.Lot, error)
	ResolveRecipients(ctx context.Context, userID uuid.UUID, criteria store.TargetCriteria) ([]string, error)
	ListDispatchRecordsByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]store.DispatchRecord, error)
}

// Dispatcher launches the background dispatch loop for a campaign
type Dispatcher interface {
	Launch(campaignID uuid.UUID)
}

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrNoRecipientsMatched  = errors.New("no recipients matched the campaign criteria")
	ErrInvalidConfiguration = errors.New("invalid campaign configuration")
)

// InvalidTransitionError rejects a control action illegal in the campaign's
// current status.
type InvalidTransitionError struct {
	From   string
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s campaign in status %s", e.Action, e.From)
}

// CampaignProcessor owns campaign lifecycle: CRUD, the status state machine
// and lot materialization. Sending itself is delegated to the dispatcher.
type CampaignProcessor struct {
	store          CampaignStore
	dispatcher     Dispatcher
	control        control.Signal
	progress       progress.Store
	defaultLotSize int
	logger         *observability.Logger
}

func New(
	campaignStore CampaignStore,
	dispatcher Dispatcher,
	controlSignal control.Signal,
	progressStore progress.Store,
	defaultLotSize int,
	logger *observability.Logger,
) CampaignProcessor {
	return CampaignProcessor{
		store:          campaignStore,
		dispatcher:     dispatcher,
		control:        controlSignal,
		progress:       progressStore,
		defaultLotSize: defaultLotSize,
		logger:         logger,
	}
}

// CreateCampaignParams represents parameters for creating a campaign
type CreateCampaignParams struct {
	Name                     string
	MessageTemplate          string
	Criteria                 store.TargetCriteria
	LotSize                  int
	InterMessageDelaySeconds int
	UseVariation             bool
	VariationCount           int
	ScheduledAt              *time.Time
}

// Create validates and persists a new campaign. A campaign with a schedule
// starts out scheduled, otherwise draft.
func (p CampaignProcessor) Create(ctx context.Context, userID uuid.UUID, params CreateCampaignParams) (store.Campaign, error) {
	if params.Name == "" || params.MessageTemplate == "" {
		return store.Campaign{}, fmt.Errorf("%w: name and message template are required", ErrInvalidConfiguration)
	}
	if params.LotSize == 0 {
		params.LotSize = p.defaultLotSize
	}
	if params.LotSize <= 0 {
		return store.Campaign{}, fmt.Errorf("%w: lot size must be positive", ErrInvalidConfiguration)
	}
	if params.InterMessageDelaySeconds < 0 {
		return store.Campaign{}, fmt.Errorf("%w: inter-message delay cannot be negative", ErrInvalidConfiguration)
	}
	if params.UseVariation && params.VariationCount <= 0 {
		return store.Campaign{}, fmt.Errorf("%w: variation count must be positive", ErrInvalidConfiguration)
	}
	if params.ScheduledAt != nil && params.ScheduledAt.Before(time.Now()) {
		return store.Campaign{}, fmt.Errorf("%w: scheduled start must be in the future", ErrInvalidConfiguration)
	}

	campaign, err := p.store.CreateCampaign(ctx, store.CreateCampaignParams{
		UserID:                   userID,
		Name:                     params.Name,
		MessageTemplate:          params.MessageTemplate,
		Criteria:                 params.Criteria,
		LotSize:                  params.LotSize,
		InterMessageDelaySeconds: params.InterMessageDelaySeconds,
		UseVariation:             params.UseVariation,
		VariationCount:           params.VariationCount,
		ScheduledAt:              params.ScheduledAt,
	})
	if err != nil {
		return store.Campaign{}, fmt.Errorf("failed to create campaign: %w", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("campaign %s created (status: %s)", campaign.ID, campaign.Status))
	return campaign, nil
}

// List returns a user's campaigns, newest first.
func (p CampaignProcessor) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]store.Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return p.store.ListCampaignsByUser(ctx, userID, limit, offset)
}

// Get returns one campaign owned by the user.
func (p CampaignProcessor) Get(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error) {
	campaign, err := p.store.GetCampaignForUser(ctx, campaignID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Campaign{}, ErrCampaignNotFound
		}
		return store.Campaign{}, err
	}
	return campaign, nil
}

// Records returns a campaign's dispatch log, oldest first.
func (p CampaignProcessor) Records(ctx context.Context, userID, campaignID uuid.UUID, limit, offset int) ([]store.DispatchRecord, error) {
	if _, err := p.Get(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return p.store.ListDispatchRecordsByCampaign(ctx, campaignID, limit, offset)
}

// Delete removes a campaign. Deletion is refused while a campaign is
// processing; pause or cancel it first.
func (p CampaignProcessor) Delete(ctx context.Context, userID, campaignID uuid.UUID) error {
	campaign, err := p.Get(ctx, userID, campaignID)
	if err != nil {
		return err
	}
	if campaign.Status == store.CampaignStatusProcessing {
		return &InvalidTransitionError{From: campaign.Status, Action: "delete"}
	}
	if err := p.store.DeleteCampaign(ctx, campaignID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCampaignNotFound
		}
		return err
	}
	if err := p.progress.Delete(ctx, campaignID.String()); err != nil {
		p.logger.Error(ctx, "failed to delete campaign progress", err)
	}
	return nil
}

// Start moves a campaign into processing and launches its dispatch worker.
// Legal from draft, scheduled and paused. Lot materialization happens exactly
// once per campaign: a conditional update claims the right to create lots, so
// concurrent duplicate starts cannot double-materialize.
func (p CampaignProcessor) Start(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error) {
	campaign, err := p.Get(ctx, userID, campaignID)
	if err != nil {
		return store.Campaign{}, err
	}

	switch campaign.Status {
	case store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusPaused:
	default:
		return store.Campaign{}, &InvalidTransitionError{From: campaign.Status, Action: "start"}
	}

	if campaign.TotalLots == 0 {
		if err := p.materializeLots(ctx, campaign); err != nil {
			return store.Campaign{}, err
		}
	}

	// A stale pause flag must not halt the fresh worker.
	if err := p.control.Clear(ctx, campaignID.String()); err != nil {
		p.logger.Error(ctx, "failed to clear control flag on start", err)
	}

	campaign, err = p.store.UpdateCampaignStatusFrom(ctx, campaignID, store.CampaignStatusProcessing,
		store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusPaused)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with a concurrent start; the winner's worker is
			// already running (or about to be), which is the requested
			// outcome either way.
			current, getErr := p.Get(ctx, userID, campaignID)
			if getErr != nil {
				return store.Campaign{}, getErr
			}
			if current.Status == store.CampaignStatusProcessing {
				p.dispatcher.Launch(campaignID)
				return current, nil
			}
			return store.Campaign{}, &InvalidTransitionError{From: current.Status, Action: "start"}
		}
		return store.Campaign{}, err
	}

	p.dispatcher.Launch(campaignID)
	p.logger.Info(ctx, fmt.Sprintf("campaign %s started", campaignID))
	return campaign, nil
}

// materializeLots resolves the audience and creates the campaign's lots. The
// claim is the concurrency guard: exactly one caller wins it; losers skip
// creation entirely.
func (p CampaignProcessor) materializeLots(ctx context.Context, campaign store.Campaign) error {
	recipients, err := p.store.ResolveRecipients(ctx, campaign.UserID, campaign.Criteria)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return ErrNoRecipientsMatched
	}

	slices, err := SliceRecipients(recipients, campaign.LotSize)
	if err != nil {
		return err
	}

	claimed, err := p.store.ClaimLotMaterialization(ctx, campaign.ID, len(slices))
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	params := make([]store.CreateLotParams, len(slices))
	for i, slice := range slices {
		params[i] = store.CreateLotParams{
			CampaignID:    campaign.ID,
			SequenceIndex: i,
			Recipients:    slice,
		}
	}
	if _, err := p.store.CreateLots(ctx, params); err != nil {
		return fmt.Errorf("failed to create lots: %w", err)
	}

	p.logger.Info(ctx, fmt.Sprintf("campaign %s materialized: %d recipients in %d lots", campaign.ID, len(recipients), len(slices)))
	return nil
}

// Pause requests a cooperative stop of the running worker and marks the
// campaign paused. Legal only from processing. The flag is raised before the
// status flips so the worker cannot miss it.
func (p CampaignProcessor) Pause(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error) {
	campaign, err := p.Get(ctx, userID, campaignID)
	if err != nil {
		return store.Campaign{}, err
	}
	if campaign.Status != store.CampaignStatusProcessing {
		return store.Campaign{}, &InvalidTransitionError{From: campaign.Status, Action: "pause"}
	}

	if err := p.control.Request(ctx, campaignID.String()); err != nil {
		return store.Campaign{}, fmt.Errorf("failed to signal dispatch stop: %w", err)
	}

	campaign, err = p.store.UpdateCampaignStatusFrom(ctx, campaignID, store.CampaignStatusPaused, store.CampaignStatusProcessing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			current, getErr := p.Get(ctx, userID, campaignID)
			if getErr != nil {
				return store.Campaign{}, getErr
			}
			return store.Campaign{}, &InvalidTransitionError{From: current.Status, Action: "pause"}
		}
		return store.Campaign{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("campaign %s paused", campaignID))
	return campaign, nil
}

// Resume re-activates a paused campaign. With a future schedule it goes back
// to scheduled and waits for promotion; otherwise it resumes processing
// immediately, picking up from its dispatch records.
func (p CampaignProcessor) Resume(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error) {
	campaign, err := p.Get(ctx, userID, campaignID)
	if err != nil {
		return store.Campaign{}, err
	}
	if campaign.Status != store.CampaignStatusPaused {
		return store.Campaign{}, &InvalidTransitionError{From: campaign.Status, Action: "resume"}
	}

	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(time.Now()) {
		campaign, err = p.store.UpdateCampaignStatusFrom(ctx, campaignID, store.CampaignStatusScheduled, store.CampaignStatusPaused)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Campaign{}, &InvalidTransitionError{From: campaign.Status, Action: "resume"}
			}
			return store.Campaign{}, err
		}
		p.logger.Info(ctx, fmt.Sprintf("campaign %s resumed to scheduled start at %s", campaignID, campaign.ScheduledAt))
		return campaign, nil
	}

	return p.Start(ctx, userID, campaignID)
}

// Cancel terminally stops a campaign. A processing campaign must be paused
// first so in-transit sends are not lost.
func (p CampaignProcessor) Cancel(ctx context.Context, userID, campaignID uuid.UUID) (store.Campaign, error) {
	campaign, err := p.Get(ctx, userID, campaignID)
	if err != nil {
		return store.Campaign{}, err
	}

	switch campaign.Status {
	case store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusPaused:
	default:
		return store.Campaign{}, &InvalidTransitionError{From: campaign.Status, Action: "cancel"}
	}

	campaign, err = p.store.UpdateCampaignStatusFrom(ctx, campaignID, store.CampaignStatusCanceled,
		store.CampaignStatusDraft, store.CampaignStatusScheduled, store.CampaignStatusPaused)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			current, getErr := p.Get(ctx, userID, campaignID)
			if getErr != nil {
				return store.Campaign{}, getErr
			}
			return store.Campaign{}, &InvalidTransitionError{From: current.Status, Action: "cancel"}
		}
		return store.Campaign{}, err
	}

	p.logger.Info(ctx, fmt.Sprintf("campaign %s canceled", campaignID))
	return campaign, nil
}

// Progress returns the live progress snapshot for a campaign.
func (p CampaignProcessor) Progress(ctx context.Context, userID, campaignID uuid.UUID) (progress.Entry, error) {
	if _, err := p.Get(ctx, userID, campaignID); err != nil {
		return progress.Entry{}, err
	}
	return p.progress.Read(ctx, campaignID.String())
}
