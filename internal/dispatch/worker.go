package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dispatch-server/internal/control"
	"dispatch-server/internal/gateway"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/store"
	"dispatch-server/internal/variation"

	"github.com/google/uuid"
)

// EngineStore defines the database operations required by the dispatch engine
type EngineStore interface {
	GetCampaignByID(ctx context.Context, campaignID uuid.UUID) (store.Campaign, error)
	UpdateCampaignStatus(ctx context.Context, campaignID uuid.UUID, status string) (store.Campaign, error)
	UpdateCampaignStatusFrom(ctx context.Context, campaignID uuid.UUID, status string, from ...string) (store.Campaign, error)
	UpdateCampaignScheduledAt(ctx context.Context, campaignID uuid.UUID, scheduledAt *time.Time) error
	IncrementCampaignCounters(ctx context.Context, campaignID uuid.UUID, sentDelta, failedDelta int) error
	IncrementCompletedLots(ctx context.Context, campaignID uuid.UUID) error
	GetLotsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]store.Lot, error)
	UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status string) (store.Lot, error)
	CreateDispatchRecord(ctx context.Context, params store.CreateDispatchRecordParams) (store.DispatchRecord, error)
	UpdateDispatchRecordOutcome(ctx context.Context, params store.UpdateDispatchRecordOutcomeParams) (store.DispatchRecord, error)
	GetTerminalRecipientsByLot(ctx context.Context, lotID uuid.UUID) (map[string]bool, error)
	ListConnectedInstances(ctx context.Context, userID uuid.UUID) ([]store.GatewayInstance, error)
}

// Notifier is told when a campaign reaches a terminal state. Notifications are
// best effort and must never affect the campaign outcome.
type Notifier interface {
	CampaignFinished(ctx context.Context, campaign store.Campaign) error
}

// EngineConfig holds the dispatch engine tuning knobs
type EngineConfig struct {
	Retry                 RetryPolicy
	GatewayRequestTimeout time.Duration
	// InstanceRetryDelay is how far in the future a campaign is re-scheduled
	// when its whole roster is disconnected.
	InstanceRetryDelay time.Duration
}

// Engine runs campaign dispatch loops. Each campaign gets at most one worker
// goroutine at a time; recipients within a campaign are strictly sequential.
type Engine struct {
	store    EngineStore
	registry *gateway.Registry
	variants variation.Generator
	progress progress.Store
	control  control.Signal
	notifier Notifier
	typing   *TypingSimulator
	config   EngineConfig
	logger   *observability.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewEngine creates a dispatch engine. notifier may be nil when completion
// notifications are not configured.
func NewEngine(
	engineStore EngineStore,
	registry *gateway.Registry,
	variants variation.Generator,
	progressStore progress.Store,
	controlSignal control.Signal,
	notifier Notifier,
	typing *TypingSimulator,
	config EngineConfig,
	logger *observability.Logger,
) *Engine {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:    engineStore,
		registry: registry,
		variants: variants,
		progress: progressStore,
		control:  controlSignal,
		notifier: notifier,
		typing:   typing,
		config:   config,
		logger:   logger,
		baseCtx:  baseCtx,
		cancel:   cancel,
		running:  make(map[uuid.UUID]struct{}),
	}
}

// Launch starts the dispatch loop for a campaign in a new goroutine. A
// campaign that already has a running worker is left alone, so duplicate
// start and resume requests are harmless.
func (e *Engine) Launch(campaignID uuid.UUID) {
	e.mu.Lock()
	if _, ok := e.running[campaignID]; ok {
		e.mu.Unlock()
		return
	}
	e.running[campaignID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, campaignID)
			e.mu.Unlock()
		}()
		e.run(campaignID)
	}()
}

// Shutdown cancels all running workers and waits for them to exit or for ctx
// to expire. Interrupted campaigns stay in processing status and resume from
// their dispatch records on the next start.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// run drives one campaign from its current position to a terminal state.
func (e *Engine) run(campaignID uuid.UUID) {
	ctx := observability.WithFields(e.baseCtx,
		observability.Field{Key: "campaign_id", Value: campaignID},
	)

	campaign, err := e.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		e.logger.Error(ctx, "failed to load campaign for dispatch", err)
		return
	}
	if campaign.Status != store.CampaignStatusProcessing {
		e.logger.Info(ctx, fmt.Sprintf("campaign is not processing, skipping dispatch (status: %s)", campaign.Status))
		return
	}

	lots, err := e.store.GetLotsByCampaign(ctx, campaignID)
	if err != nil {
		e.logger.Error(ctx, "failed to load campaign lots", err)
		return
	}

	total := 0
	for _, lot := range lots {
		total += len(lot.Recipients)
	}

	key := campaignID.String()
	e.updateProgress(ctx, key, progress.Update{
		Status:    strPtr(store.CampaignStatusProcessing),
		Sent:      intPtr(campaign.SentCount),
		Failed:    intPtr(campaign.FailedCount),
		Total:     intPtr(total),
		AppendLog: strPtr(fmt.Sprintf("dispatch started: %d recipients in %d lots", total, len(lots))),
	})

	variants := e.messageVariants(ctx, campaign)
	selector := NewInstanceSelector(nil)

	sent := campaign.SentCount
	failed := campaign.FailedCount
	processed := 0

	for _, lot := range lots {
		done, err := e.runLot(ctx, campaign, lot, selector, variants, &sent, &failed, &processed, total)
		if err != nil {
			e.failLot(ctx, campaign, lot, err)
			return
		}
		if !done {
			// Halted by pause, cancel, shutdown or instance exhaustion.
			return
		}
	}

	e.complete(ctx, campaignID)
}

// runLot dispatches one lot. It returns false with a nil error when the run
// was halted cooperatively and should not continue to the next lot.
func (e *Engine) runLot(
	ctx context.Context,
	campaign store.Campaign,
	lot store.Lot,
	selector *InstanceSelector,
	variants []string,
	sent, failed, processed *int,
	total int,
) (bool, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "lot_id", Value: lot.ID},
		observability.Field{Key: "lot_sequence", Value: lot.SequenceIndex},
	)

	if lot.Status == store.LotStatusDone {
		*processed += len(lot.Recipients)
		return true, nil
	}

	terminal, err := e.store.GetTerminalRecipientsByLot(ctx, lot.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load lot checkpoint: %w", err)
	}

	if lot.Status != store.LotStatusProcessing {
		if _, err := e.store.UpdateLotStatus(ctx, lot.ID, store.LotStatusProcessing); err != nil {
			return false, fmt.Errorf("failed to mark lot processing: %w", err)
		}
	}

	// Roster refresh happens at every lot boundary so reconnections and
	// drop-offs are picked up between lots.
	if err := e.refreshRoster(ctx, campaign.UserID, selector); err != nil {
		return false, fmt.Errorf("failed to load instance roster: %w", err)
	}

	key := campaign.ID.String()

	for _, recipient := range lot.Recipients {
		if terminal[recipient] {
			*processed++
			continue
		}

		select {
		case <-ctx.Done():
			// Shutdown: leave the campaign in processing so it resumes
			// from its dispatch records on restart.
			return false, nil
		default:
		}

		halted, err := e.checkControl(ctx, campaign.ID)
		if err != nil {
			return false, err
		}
		if halted {
			return false, nil
		}

		instance, err := selector.Next()
		if errors.Is(err, ErrNoInstanceAvailable) {
			// One refresh retry covers instances that reconnected since
			// the lot boundary.
			if refreshErr := e.refreshRoster(ctx, campaign.UserID, selector); refreshErr != nil {
				return false, fmt.Errorf("failed to reload instance roster: %w", refreshErr)
			}
			instance, err = selector.Next()
		}
		if errors.Is(err, ErrNoInstanceAvailable) {
			return false, e.handleNoInstance(ctx, campaign, lot)
		}
		if err != nil {
			return false, err
		}

		text := messageFor(variants, campaign.MessageTemplate, *processed)

		e.updateProgress(ctx, key, progress.Update{
			CurrentRecipient: strPtr(recipient),
			CurrentInstance:  strPtr(instance.Name),
		})

		record, err := e.store.CreateDispatchRecord(ctx, store.CreateDispatchRecordParams{
			CampaignID:        campaign.ID,
			LotID:             lot.ID,
			Recipient:         recipient,
			MessageText:       text,
			GatewayInstanceID: &instance.ID,
		})
		if err != nil {
			return false, fmt.Errorf("failed to create dispatch record: %w", err)
		}

		if err := e.typing.Simulate(ctx, instance, recipient, len(text)); err != nil {
			return false, nil
		}

		sendErr := e.send(ctx, campaign.ID, instance, recipient, text, record.ID)
		*processed++
		if sendErr != nil {
			*failed++
			e.updateProgress(ctx, key, progress.Update{
				Failed:    intPtr(*failed),
				AppendLog: strPtr(fmt.Sprintf("send to %s failed via %s: %v", recipient, instance.Name, sendErr)),
			})
		} else {
			*sent++
			e.updateProgress(ctx, key, progress.Update{
				Sent:      intPtr(*sent),
				AppendLog: strPtr(fmt.Sprintf("sent to %s via %s", recipient, instance.Name)),
			})
		}

		// No pause after the campaign's final recipient.
		if *processed < total {
			if halted, err := e.interMessagePause(ctx, campaign, key); err != nil || halted {
				return false, err
			}
		}
	}

	if _, err := e.store.UpdateLotStatus(ctx, lot.ID, store.LotStatusDone); err != nil {
		return false, fmt.Errorf("failed to mark lot done: %w", err)
	}
	if err := e.store.IncrementCompletedLots(ctx, campaign.ID); err != nil {
		e.logger.Error(ctx, "failed to increment completed lots", err)
	}
	e.logger.Info(ctx, fmt.Sprintf("lot %d completed", lot.SequenceIndex))
	return true, nil
}

// send performs one delivery with retry on rate limiting and records the
// outcome. The returned error reflects a terminally failed send, which the
// caller counts but does not abort on.
func (e *Engine) send(ctx context.Context, campaignID uuid.UUID, instance store.GatewayInstance, recipient, text string, recordID uuid.UUID) error {
	attempts := 0
	sendErr := e.config.Retry.Do(ctx, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, e.config.GatewayRequestTimeout)
		defer cancel()
		return e.registry.Send(callCtx, instance, recipient, text)
	})

	outcome := store.UpdateDispatchRecordOutcomeParams{
		RecordID:     recordID,
		Status:       store.DispatchStatusSent,
		AttemptCount: attempts,
	}
	sentDelta, failedDelta := 1, 0
	if sendErr != nil {
		errMsg := sendErr.Error()
		outcome.Status = store.DispatchStatusFailed
		outcome.LastError = &errMsg
		sentDelta, failedDelta = 0, 1
		e.logger.Error(ctx, fmt.Sprintf("failed to send to %s after %d attempts", recipient, attempts), sendErr)
	}

	if _, err := e.store.UpdateDispatchRecordOutcome(ctx, outcome); err != nil {
		e.logger.Error(ctx, "failed to record dispatch outcome", err)
	}
	if err := e.store.IncrementCampaignCounters(ctx, campaignID, sentDelta, failedDelta); err != nil {
		e.logger.Error(ctx, "failed to update campaign counters", err)
	}
	return sendErr
}

// checkControl consumes a raised stop/pause flag. The request handler already
// moved the campaign status, so the worker only needs to stop and reflect the
// new status in the progress snapshot.
func (e *Engine) checkControl(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	raised, err := e.control.IsSet(ctx, campaignID.String())
	if err != nil {
		e.logger.Error(ctx, "failed to read control flag", err)
		return false, nil
	}
	if !raised {
		return false, nil
	}
	if err := e.control.Clear(ctx, campaignID.String()); err != nil {
		e.logger.Error(ctx, "failed to clear control flag", err)
	}

	campaign, err := e.store.GetCampaignByID(ctx, campaignID)
	if err != nil {
		return false, fmt.Errorf("failed to reload campaign after control flag: %w", err)
	}
	e.updateProgress(ctx, campaignID.String(), progress.Update{
		Status:           strPtr(campaign.Status),
		ClearNextMessage: true,
		AppendLog:        strPtr(fmt.Sprintf("dispatch halted (status: %s)", campaign.Status)),
	})
	e.logger.Info(ctx, fmt.Sprintf("dispatch halted by control flag (status: %s)", campaign.Status))
	return true, nil
}

// interMessagePause sleeps the configured inter-message delay, publishing the
// resume timestamp so clients can render a countdown. Returns halted=true on
// shutdown.
func (e *Engine) interMessagePause(ctx context.Context, campaign store.Campaign, key string) (bool, error) {
	delay := time.Duration(campaign.InterMessageDelaySeconds) * time.Second
	if delay <= 0 {
		return false, nil
	}

	nextAt := time.Now().Add(delay).UnixMilli()
	e.updateProgress(ctx, key, progress.Update{NextMessageAt: &nextAt})

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true, nil
	case <-timer.C:
	}

	e.updateProgress(ctx, key, progress.Update{ClearNextMessage: true})
	return false, nil
}

// handleNoInstance parks a campaign whose whole roster is disconnected: the
// in-flight lot returns to pending and the campaign is re-scheduled a short
// delay into the future, where the schedule manager picks it up again.
func (e *Engine) handleNoInstance(ctx context.Context, campaign store.Campaign, lot store.Lot) error {
	if _, err := e.store.UpdateLotStatus(ctx, lot.ID, store.LotStatusPending); err != nil {
		return fmt.Errorf("failed to return lot to pending: %w", err)
	}

	retryAt := time.Now().Add(e.config.InstanceRetryDelay)
	if _, err := e.store.UpdateCampaignStatusFrom(ctx, campaign.ID, store.CampaignStatusScheduled, store.CampaignStatusProcessing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Lost a race with pause/cancel; their status wins.
			return nil
		}
		return fmt.Errorf("failed to park campaign: %w", err)
	}
	if err := e.store.UpdateCampaignScheduledAt(ctx, campaign.ID, &retryAt); err != nil {
		e.logger.Error(ctx, "failed to set campaign retry time", err)
	}

	e.updateProgress(ctx, campaign.ID.String(), progress.Update{
		Status:           strPtr(store.CampaignStatusScheduled),
		ClearNextMessage: true,
		AppendLog:        strPtr(fmt.Sprintf("no connected instance available, retrying at %s", retryAt.Format(time.RFC3339))),
	})
	e.logger.Warn(ctx, fmt.Sprintf("no connected instance available, campaign re-scheduled for %s", retryAt.Format(time.RFC3339)))
	return nil
}

// failLot marks the in-flight lot failed and pauses the campaign so an
// operator can inspect and resume.
func (e *Engine) failLot(ctx context.Context, campaign store.Campaign, lot store.Lot, cause error) {
	e.logger.Error(ctx, "dispatch aborted by unrecoverable error", cause)

	if _, err := e.store.UpdateLotStatus(ctx, lot.ID, store.LotStatusFailed); err != nil {
		e.logger.Error(ctx, "failed to mark lot failed", err)
	}
	if _, err := e.store.UpdateCampaignStatusFrom(ctx, campaign.ID, store.CampaignStatusPaused, store.CampaignStatusProcessing); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.logger.Error(ctx, "failed to pause campaign after lot failure", err)
	}
	e.updateProgress(ctx, campaign.ID.String(), progress.Update{
		Status:           strPtr(store.CampaignStatusPaused),
		ClearNextMessage: true,
		AppendLog:        strPtr("dispatch paused: " + cause.Error()),
	})
}

// complete closes out a campaign whose every lot is done.
func (e *Engine) complete(ctx context.Context, campaignID uuid.UUID) {
	campaign, err := e.store.UpdateCampaignStatusFrom(ctx, campaignID, store.CampaignStatusCompleted, store.CampaignStatusProcessing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Paused or canceled between the last send and completion.
			return
		}
		e.logger.Error(ctx, "failed to complete campaign", err)
		return
	}

	e.updateProgress(ctx, campaignID.String(), progress.Update{
		Status:           strPtr(store.CampaignStatusCompleted),
		ClearNextMessage: true,
		AppendLog:        strPtr(fmt.Sprintf("campaign completed: %d sent, %d failed", campaign.SentCount, campaign.FailedCount)),
	})
	e.logger.Info(ctx, fmt.Sprintf("campaign completed: %d sent, %d failed", campaign.SentCount, campaign.FailedCount))

	if e.notifier != nil {
		if err := e.notifier.CampaignFinished(ctx, campaign); err != nil {
			e.logger.Error(ctx, "failed to send completion notification", err)
		}
	}
}

// messageVariants resolves the message texts for a campaign. Generation
// failure falls back to the plain template so a flaky AI vendor never blocks
// a dispatch.
func (e *Engine) messageVariants(ctx context.Context, campaign store.Campaign) []string {
	if !campaign.UseVariation || e.variants == nil {
		return nil
	}
	count := campaign.VariationCount
	if count <= 0 {
		count = 3
	}
	variants, err := e.variants.Generate(ctx, campaign.MessageTemplate, count)
	if err != nil || len(variants) == 0 {
		e.logger.Error(ctx, "failed to generate message variations, using template", err)
		return nil
	}
	return variants
}

func (e *Engine) refreshRoster(ctx context.Context, userID uuid.UUID, selector *InstanceSelector) error {
	instances, err := e.store.ListConnectedInstances(ctx, userID)
	if err != nil {
		return err
	}
	selector.SetRoster(instances)
	return nil
}

// updateProgress writes a progress delta, logging failures instead of
// propagating them: losing a progress snapshot never aborts a dispatch.
func (e *Engine) updateProgress(ctx context.Context, key string, update progress.Update) {
	if err := e.progress.Update(ctx, key, update); err != nil {
		e.logger.Error(ctx, "failed to update progress", err)
	}
}

// messageFor rotates through the generated variants by overall recipient
// position, falling back to the template when no variants exist.
func messageFor(variants []string, template string, index int) string {
	if len(variants) == 0 {
		return template
	}
	return variants[index%len(variants)]
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
